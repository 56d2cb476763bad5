package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/properties/":                    "/properties/",
		"/bookings/42/":                   "/bookings/:id/",
		"/bookings/42/cancel/":            "/bookings/:id/cancel/",
		"/account/roles/7/?page=2":        "/account/roles/:id/",
		"/payments/verify/?reference=abc": "/payments/verify/",
		"/external-calendars/3/sync/":     "/external-calendars/:id/sync/",
		"/account/users/01HZX3Q1V8Y2M4N5P6R7S8T9VW/": "/account/users/:id/",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, CanonicalPath(input), "CanonicalPath(%q)", input)
	}
}

func TestHandlerExposesClientMetrics(t *testing.T) {
	done := RequestStarted(http.MethodGet, "/bookings/9/")
	done(http.StatusOK)
	RefreshOutcome("success")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `rentdesk_client_requests_total{method="GET",path="/bookings/:id/",status="200"}`))
	assert.Contains(t, body, `rentdesk_client_token_refresh_total{outcome="success"}`)
}
