package domain

// ContactStatus enumerates whether a contact receives the weekly email.
type ContactStatus string

const (
	ContactActive   ContactStatus = "active"
	ContactInactive ContactStatus = "inactive"
)

// Contact is a recipient of the weekly email. The engine only reads contacts;
// CRUD and imports live elsewhere.
type Contact struct {
	ID         string        `json:"id" db:"id"`
	Email      string        `json:"email" db:"email"`
	FirstName  string        `json:"firstname" db:"firstname"`
	LastName   string        `json:"lastname" db:"lastname"`
	Status     ContactStatus `json:"status" db:"status"`
	OrderCount *int          `json:"order_count" db:"order_count"`
}

// Orders returns the order count, treating a missing value as zero.
func (c Contact) Orders() int {
	if c.OrderCount == nil {
		return 0
	}
	return *c.OrderCount
}

// IsCold reports whether the contact has never ordered.
func (c Contact) IsCold() bool { return c.Orders() == 0 }
