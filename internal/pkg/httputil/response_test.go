package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "week_of must be YYYY-MM-DD")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"error","message":"week_of must be YYYY-MM-DD"}`, rec.Body.String())
}

func TestInternalError_HidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestDecode(t *testing.T) {
	var dst struct {
		Rank int `json:"rank"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rank":2}`))
	assert.True(t, Decode(rec, req, &dst))
	assert.Equal(t, 2, dst.Rank)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryBool(t *testing.T) {
	for q, want := range map[string]bool{"force=1": true, "force=true": true, "force=YES": true, "force=0": false, "": false} {
		req := httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		assert.Equal(t, want, QueryBool(req, "force"), q)
	}
}
