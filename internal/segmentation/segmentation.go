// Package segmentation assigns each contact to a funnel stage for a given week.
//
// The assignment is a pure function of (contact id, week_of, order count). The
// hash is defined over UTF-16 code units so the bucket matches other
// implementations of the same algorithm bit for bit.
package segmentation

import (
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// Buckets is the modulus applied to the stable hash.
const Buckets = 4

// ErrStageMissing is returned when the candidate set lacks the target stage.
var ErrStageMissing = errors.New("segmentation: target funnel stage missing from candidates")

// StableHash is the djb2 variant h = h*33 + c (mod 2^32), seeded with 5381,
// over the UTF-16 code units of s.
func StableHash(s string) uint32 {
	h := uint32(5381)
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) + h + uint32(c)
	}
	return h
}

// Bucket returns StableHash(contactID+weekOf) % Buckets.
func Bucket(contactID, weekOf string) int {
	return int(StableHash(contactID+weekOf) % Buckets)
}

// TargetStage maps a bucket and cold flag to a funnel stage. Bucket 3 always
// lands on mid; the rest go to top when cold and bottom otherwise.
func TargetStage(bucket int, cold bool) domain.FunnelStage {
	if bucket == Buckets-1 {
		return domain.StageMid
	}
	if cold {
		return domain.StageTop
	}
	return domain.StageBottom
}

// Assignment is the audit record of one contact's pick.
type Assignment struct {
	ContactID string             `json:"contact_id"`
	WeekOf    string             `json:"week_of"`
	Bucket    int                `json:"bucket"`
	Cold      bool               `json:"cold"`
	Stage     domain.FunnelStage `json:"funnel_stage"`
}

// Assign computes the bucket and target stage for a contact without looking
// at candidates.
func Assign(contact domain.Contact, weekOf string) Assignment {
	bucket := Bucket(contact.ID, weekOf)
	cold := contact.IsCold()
	return Assignment{
		ContactID: contact.ID,
		WeekOf:    weekOf,
		Bucket:    bucket,
		Cold:      cold,
		Stage:     TargetStage(bucket, cold),
	}
}

// SelectForContact returns the candidate whose funnel stage matches the
// contact's assignment for weekOf.
func SelectForContact(contact domain.Contact, candidates []domain.Candidate, weekOf string) (domain.Candidate, error) {
	a := Assign(contact, weekOf)
	for _, c := range candidates {
		if c.FunnelStage == a.Stage {
			return c, nil
		}
	}
	return domain.Candidate{}, fmt.Errorf("%w: %s for contact %s", ErrStageMissing, a.Stage, contact.ID)
}
