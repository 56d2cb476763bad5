package transport

import (
	"net/http"
	"net/url"
)

// CSRFCookie is the cookie the backend uses to hand out the CSRF token.
const CSRFCookie = "csrftoken"

// CookieValue returns the decoded value of the named cookie as the jar would
// send it to u. A nil jar or a missing cookie yields ("", false). Values that
// are not valid percent-encoding are returned as stored.
func CookieValue(jar http.CookieJar, u *url.URL, name string) (string, bool) {
	if jar == nil || u == nil || name == "" {
		return "", false
	}
	for _, c := range jar.Cookies(u) {
		if c.Name != name {
			continue
		}
		decoded, err := url.PathUnescape(c.Value)
		if err != nil {
			return c.Value, true
		}
		return decoded, true
	}
	return "", false
}
