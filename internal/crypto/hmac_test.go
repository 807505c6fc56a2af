package crypto

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebhookSignerVerify(t *testing.T) {
	now := time.Unix(1_772_000_000, 0)
	s := NewWebhookSigner("hook", 5*time.Minute)
	s.now = func() time.Time { return now }

	body := []byte(`{"fixture_id":7}`)
	ts := now.Unix()
	sig := s.SignAt(body, ts)

	tests := []struct {
		name string
		body []byte
		ts   string
		sig  string
		want error
	}{
		{"valid", body, strconv.FormatInt(ts, 10), sig, nil},
		{"missing signature", body, strconv.FormatInt(ts, 10), "", ErrMissingSignature},
		{"missing timestamp", body, "", sig, ErrMissingSignature},
		{"malformed timestamp", body, "yesterday", sig, ErrBadTimestamp},
		{"too old", body, strconv.FormatInt(ts-600, 10), s.SignAt(body, ts-600), ErrStaleTimestamp},
		{"too far ahead", body, strconv.FormatInt(ts+600, 10), s.SignAt(body, ts+600), ErrStaleTimestamp},
		{"tampered body", []byte(`{"fixture_id":8}`), strconv.FormatInt(ts, 10), sig, ErrBadSignature},
		{"wrong timestamp", body, strconv.FormatInt(ts-1, 10), sig, ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Verify(tt.body, tt.ts, tt.sig), tt.want)
		})
	}
}

func TestWebhookSignerNoTolerance(t *testing.T) {
	s := NewWebhookSigner("hook", 0)
	body := []byte("x")
	assert.NoError(t, s.Verify(body, "1", s.SignAt(body, 1)))
	assert.Len(t, s.SignAt(body, 1), 64)
}
