package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubObserver struct {
	authenticated atomic.Int32
	loggedOut     atomic.Int32
}

func (s *stubObserver) MarkAuthenticated() { s.authenticated.Add(1) }
func (s *stubObserver) Logout()            { s.loggedOut.Add(1) }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func hasAccess(r *http.Request) bool {
	c, err := r.Cookie("access")
	return err == nil && c.Value == "fresh"
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *stubObserver) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	observer := &stubObserver{}
	c, err := New(srv.URL, append([]Option{WithSessionObserver(observer)}, opts...)...)
	require.NoError(t, err)
	return c, observer
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New("localhost")
	require.Error(t, err)
}

func TestDoSendsHeadersAndDecodes(t *testing.T) {
	var got http.Header
	var gotQuery url.Values
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/properties/", r.URL.Path)
		got = r.Header.Clone()
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"id": 3, "title": "Loft"})
	}))
	c.Jar().SetCookies(c.BaseURL(), []*http.Cookie{{Name: CSRFCookie, Value: "tok%3D1", Path: "/"}})

	var out struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/properties/",
		Query:  Values("city", "Lagos", "guests", ""),
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 3, out.ID)
	assert.Equal(t, "Loft", out.Title)
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "tok=1", got.Get("X-CSRFToken"))
	assert.Len(t, got.Get("X-Request-ID"), 26)
	assert.Equal(t, "Lagos", gotQuery.Get("city"))
	assert.False(t, gotQuery.Has("guests"))
}

func TestDoOmitsCSRFHeaderWithoutCookie(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Csrftoken"]
		assert.False(t, present)
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/bookings/1/"}, nil))
}

func TestDoParsesFieldErrors(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": map[string][]string{"check_out": {"must be after check_in"}},
			"email":  []string{"Enter a valid email address."},
		})
	}))

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/bookings/", Body: map[string]any{}}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []string{
		"check_out: must be after check_in",
		"email: Enter a valid email address.",
	}, apiErr.FieldMessages())
	assert.NotEmpty(t, apiErr.Body)
}

func TestDoParsesDetail(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
	}))
	err := c.Do(context.Background(), Request{Path: "/properties/99/"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Not found.")
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	require.NoError(t, err)
	err = c.Do(context.Background(), Request{Path: "/properties/"}, nil)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNetwork())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 0, StatusOf(err))
}

func TestRefreshThenRetry(t *testing.T) {
	var refreshes, protected atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "access", Value: "fresh", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("/api/bookings/", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		if !hasAccess(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": 1})
	})
	c, observer := newTestClient(t, mux)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, c.Do(context.Background(), Request{Path: "/bookings/"}, &out))
	assert.Equal(t, 1, out.Count)
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 2, protected.Load())
	assert.EqualValues(t, 1, observer.authenticated.Load())
	assert.EqualValues(t, 0, observer.loggedOut.Load())
}

func TestRefreshFailureLogsOut(t *testing.T) {
	var protected atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "refresh expired"})
	})
	mux.HandleFunc("/api/bookings/", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "token expired"})
	})
	c, observer := newTestClient(t, mux)

	err := c.Do(context.Background(), Request{Path: "/bookings/"}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "/bookings/", apiErr.Path)
	assert.Equal(t, "token expired", apiErr.Detail)
	assert.EqualValues(t, 1, protected.Load())
	assert.EqualValues(t, 1, observer.loggedOut.Load())
	assert.EqualValues(t, 0, observer.authenticated.Load())
}

func TestRetryHappensAtMostOnce(t *testing.T) {
	var refreshes, protected atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("/api/account/me/", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "nope"})
	})
	c, _ := newTestClient(t, mux)

	err := c.Do(context.Background(), Request{Path: "/account/me/"}, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 2, protected.Load())
}

func TestNoReauthSkipsRefresh(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("/api/account/jwt/create/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "No active account found with the given credentials"})
	})
	c, observer := newTestClient(t, mux)

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/account/jwt/create/", Body: map[string]string{"email": "a@b.c"}, NoReauth: true}, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 0, refreshes.Load())
	assert.EqualValues(t, 0, observer.loggedOut.Load())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	var (
		refreshes    atomic.Int32
		inRefresh    atomic.Int32
		maxInRefresh atomic.Int32
		rejected     sync.WaitGroup
	)
	rejected.Add(n)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		cur := inRefresh.Add(1)
		defer inRefresh.Add(-1)
		for {
			prev := maxInRefresh.Load()
			if cur <= prev || maxInRefresh.CompareAndSwap(prev, cur) {
				break
			}
		}
		refreshes.Add(1)
		// Hold the refresh until every request has been rejected once.
		rejected.Wait()
		time.Sleep(50 * time.Millisecond)
		http.SetCookie(w, &http.Cookie{Name: "access", Value: "fresh", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	var once sync.Map
	mux.HandleFunc("/api/payments/", func(w http.ResponseWriter, r *http.Request) {
		if !hasAccess(r) {
			if _, seen := once.LoadOrStore(r.URL.Query().Get("n"), true); !seen {
				rejected.Done()
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	c, observer := newTestClient(t, mux)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), Request{Path: "/payments/", Query: url.Values{"n": {string(rune('a' + i))}}}, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 1, maxInRefresh.Load())
	assert.EqualValues(t, 1, observer.authenticated.Load())
}

func TestConcurrentUnauthorizedShareFailedRefresh(t *testing.T) {
	const n = 6
	var (
		refreshes atomic.Int32
		protected atomic.Int32
		rejected  sync.WaitGroup
	)
	rejected.Add(n)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		rejected.Wait()
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "refresh expired"})
	})
	mux.HandleFunc("/api/bookings/", func(w http.ResponseWriter, r *http.Request) {
		protected.Add(1)
		rejected.Done()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "token expired"})
	})
	c, observer := newTestClient(t, mux)

	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		paths[i] = "/bookings/" + strconv.Itoa(i+1) + "/"
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), Request{Path: paths[i]}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.ErrorIs(t, err, ErrUnauthorized)
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, paths[i], apiErr.Path)
		assert.Equal(t, "token expired", apiErr.Detail)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, n, protected.Load())
	assert.EqualValues(t, 1, observer.loggedOut.Load())
	assert.EqualValues(t, 0, observer.authenticated.Load())
}

func TestTimeoutAppliesRegardlessOfOptionOrder(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	before, err := New("http://localhost:8000", WithTimeout(3*time.Second), WithHTTPClient(shared))
	require.NoError(t, err)
	after, err := New("http://localhost:8000", WithHTTPClient(shared), WithTimeout(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, before.http.Timeout)
	assert.Equal(t, 3*time.Second, after.http.Timeout)
	assert.NotNil(t, after.Jar())
	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Nil(t, shared.Jar)
}

func TestRefreshSurvivesWaiterCancel(t *testing.T) {
	release := make(chan struct{})
	var refreshed atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/jwt/refresh/", func(w http.ResponseWriter, r *http.Request) {
		<-release
		refreshed.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c, observer := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Refresh(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.True(t, errors.Is(<-errCh, context.Canceled))

	close(release)
	require.Eventually(t, func() bool { return observer.authenticated.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, refreshed.Load())
}

func TestValuesDropsEmpty(t *testing.T) {
	q := Values("status", "pending", "search", " ", "page", "2", "dangling")
	assert.Equal(t, "page=2&status=pending", q.Encode())
}
