package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorBodyShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		detail  string
		message string
		fields  []string
	}{
		{name: "detail", body: `{"detail":"Authentication credentials were not provided."}`, detail: "Authentication credentials were not provided."},
		{name: "message", body: `{"message":"Payment already verified"}`, message: "Payment already verified"},
		{name: "nested errors", body: `{"errors":{"guests":["exceeds max_guests"]}}`, fields: []string{"guests: exceeds max_guests"}},
		{name: "top level fields", body: `{"non_field_errors":["Dates overlap"],"count":3}`, fields: []string{"non_field_errors: Dates overlap"}},
		{name: "html", body: `<h1>Server Error</h1>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &Error{Status: 400, Body: []byte(tc.body)}
			parseErrorBody(e)
			assert.Equal(t, tc.detail, e.Detail)
			assert.Equal(t, tc.message, e.Message)
			assert.Equal(t, tc.fields, e.FieldMessages())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("load bookings: %w", &Error{Method: "GET", Path: "/bookings/", Status: 401})
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 401, StatusOf(err))
	assert.Equal(t, "GET /bookings/: 401 Unauthorized", errors.Unwrap(err).Error())
}
