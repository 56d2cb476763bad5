package api

import (
	"context"
	"net/http"

	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup is the registration payload.
type Signup struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// Session is returned by the endpoints that establish a session. Tokens travel
// as cookies; the body only carries the user.
type Session struct {
	User   domain.User `json:"user"`
	Detail string      `json:"detail,omitempty"`
}

var meTag = cache.T(TagAuth, "ME")

var (
	LoginEndpoint = Mutation[Credentials, Session]{
		Name: "login",
		Request: func(c Credentials) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: "/account/jwt/create/", Body: c, NoReauth: true}
		},
		Invalidates: func(Credentials, Session) []cache.Tag { return []cache.Tag{{Type: TagAuth}} },
	}
	SignupEndpoint = Mutation[Signup, Session]{
		Name: "signup",
		Request: func(s Signup) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: "/account/jwt/signup/", Body: s, NoReauth: true}
		},
		Invalidates: func(Signup, Session) []cache.Tag { return []cache.Tag{{Type: TagAuth}} },
	}
	LogoutEndpoint = Mutation[None, None]{
		Name: "logout",
		Request: func(None) transport.Request {
			return transport.Request{Method: http.MethodPost, Path: "/account/logout/", NoReauth: true}
		},
		Invalidates: func(None, None) []cache.Tag { return []cache.Tag{{Type: TagAuth}} },
	}
	VerifyEndpoint = Query[None, Session]{
		Name: "verify",
		Request: func(None) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/account/jwt/verify/"}
		},
		Provides: func(None, Session) []cache.Tag { return []cache.Tag{meTag} },
	}
	MeEndpoint = Query[None, domain.User]{
		Name: "me",
		Request: func(None) transport.Request {
			return transport.Request{Method: http.MethodGet, Path: "/account/me/"}
		},
		Provides: func(None, domain.User) []cache.Tag { return []cache.Tag{meTag} },
	}
)

// Login signs in and records the user in the session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*domain.User, error) {
	return c.establish(func() (Session, error) { return Run(ctx, c, LoginEndpoint, creds) })
}

// Signup registers and signs in.
func (c *Client) Signup(ctx context.Context, in Signup) (*domain.User, error) {
	return c.establish(func() (Session, error) { return Run(ctx, c, SignupEndpoint, in) })
}

// Verify checks the current cookies with the server and restores the session.
func (c *Client) Verify(ctx context.Context) (*domain.User, error) {
	return c.establish(func() (Session, error) { return Fetch(ctx, c, VerifyEndpoint, None{}) })
}

// Me loads the signed-in user and records it in the session.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	return c.establish(func() (Session, error) {
		u, err := Fetch(ctx, c, MeEndpoint, None{})
		return Session{User: u}, err
	})
}

// Logout asks the server to drop the session. Local state is cleared whatever
// the server answers.
func (c *Client) Logout(ctx context.Context) error {
	_, err := Run(ctx, c, LogoutEndpoint, None{})
	if c.session != nil {
		c.session.Logout()
	}
	// Run only invalidates on success.
	if err != nil {
		c.cache.Invalidate(cache.Tag{Type: TagAuth})
	}
	return err
}

func (c *Client) establish(call func() (Session, error)) (*domain.User, error) {
	if c.session != nil {
		c.session.SetAuthLoading(true)
	}
	s, err := call()
	if err != nil {
		if c.session != nil {
			c.session.SetAuthLoading(false)
		}
		return nil, err
	}
	u := s.User
	if c.session != nil {
		c.session.SetAuth(&u)
	}
	return &u, nil
}
