package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
)

// AddUser stores a user with a bcrypt password hash. The default role is
// assigned when none is given.
func (s *Server) AddUser(u domain.User, password string) (domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if s.findByEmail(u.Email) != nil {
		return domain.User{}, fmt.Errorf("user %s already exists", u.Email)
	}
	if u.Role == nil {
		for _, r := range s.roles {
			if r.IsDefault {
				u.Role = &domain.Role{ID: r.ID}
				break
			}
		}
	}
	u.ID = s.nextID()
	u.DateJoined = s.now().UTC()
	acc := &account{user: u, hash: hash}
	s.users[u.ID] = acc
	return s.userView(acc), nil
}

// AddRole stores a role.
func (s *Server) AddRole(r domain.Role) domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID()
	r.CreatedAt = s.now().UTC()
	r.UpdatedAt = r.CreatedAt
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	s.roles[r.ID] = &r
	return r
}

// AddProperty stores a listing.
func (s *Server) AddProperty(p domain.Property) domain.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	p.CreatedAt = s.now().UTC()
	if p.Slug == "" {
		p.Slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p.Title), " ", "-"))
	}
	s.properties[p.ID] = &p
	return p
}

// Booking returns a stored booking.
func (s *Server) Booking(id int) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, false
	}
	return *b, true
}

// Bookings counts stored bookings.
func (s *Server) Bookings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

// Seed loads a demo data set: an owner account, a staff role and a few listings.
func (s *Server) Seed() (owner domain.User, err error) {
	ownerRole := s.AddRole(domain.Role{Name: "Owner", Description: "Full access", IsSuperuserRole: true})
	staffRole := s.AddRole(domain.Role{
		Name:        "Front desk",
		Description: "Bookings and guests",
		Permissions: []string{auth.PermViewDashboard, auth.PermViewBookings, auth.PermManageBookings, auth.PermManageInquiries},
	})
	owner, err = s.AddUser(domain.User{Email: "owner@rentdesk.test", FirstName: "Olu", LastName: "Owner", IsActive: true, IsStaff: true, Role: &ownerRole}, "rentdesk-owner")
	if err != nil {
		return domain.User{}, err
	}
	if _, err = s.AddUser(domain.User{Email: "desk@rentdesk.test", FirstName: "Dami", IsActive: true, IsStaff: true, Role: &staffRole}, "rentdesk-desk"); err != nil {
		return domain.User{}, err
	}
	s.AddProperty(domain.Property{Title: "Lekki Loft", City: "Lagos", PropertyType: "apartment", Bedrooms: 2, Bathrooms: 2, MaxGuests: 4, PricePerNight: "45000.00", CleaningFee: "5000.00", IsActive: true, IsFeatured: true})
	s.AddProperty(domain.Property{Title: "Ikoyi Garden House", City: "Lagos", PropertyType: "house", Bedrooms: 4, Bathrooms: 3, MaxGuests: 8, PricePerNight: "120000.50", IsActive: true})
	s.AddProperty(domain.Property{Title: "Wuse Studio", City: "Abuja", PropertyType: "studio", Bedrooms: 1, Bathrooms: 1, MaxGuests: 2, PricePerNight: "25000", IsActive: true})
	return owner, nil
}

// findByEmail requires s.mu.
func (s *Server) findByEmail(email string) *account {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, acc := range s.users {
		if acc.user.Email == email {
			return acc
		}
	}
	return nil
}

// userView resolves the role reference. Requires s.mu.
func (s *Server) userView(acc *account) domain.User {
	u := acc.user
	if u.Role != nil {
		if r, ok := s.roles[u.Role.ID]; ok {
			role := *r
			role.Permissions = append([]string(nil), r.Permissions...)
			u.Role = &role
		} else {
			u.Role = nil
		}
	}
	return u
}

// record appends an activity log entry.
func (s *Server) record(r *http.Request, userID int, action, resourceType string, resourceID int, description string) {
	s.mu.Lock()
	entry := domain.ActivityLog{
		ID:           len(s.activity) + 1,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   strconv.Itoa(resourceID),
		Description:  description,
		IPAddress:    r.RemoteAddr,
		CreatedAt:    s.now().UTC(),
	}
	if userID > 0 {
		id := userID
		entry.User = &id
		if acc, ok := s.users[userID]; ok {
			entry.UserEmail = acc.user.Email
		}
	}
	s.activity = append(s.activity, entry)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Append(r.Context(), entry); err != nil {
			s.logger.Warn("archive activity", "action", action, "error", err)
		}
	}
}

func (s *Server) recordRequest(r *http.Request, action, resourceType string, resourceID int, description string) {
	id, _ := currentUserID(r)
	s.record(r, id, action, resourceType, resourceID, description)
}

// --- listing helpers ---

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

// mergePatch applies fields onto dst through its JSON form. id is never patched.
func mergePatch(dst any, fields map[string]any) error {
	m := toMap(dst)
	for k, v := range fields {
		if k == "id" {
			continue
		}
		m[k] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

var reservedParams = map[string]bool{"page": true, "page_size": true, "search": true, "ordering": true}

// matches compares query filters against a JSON object by string form.
func matches(obj map[string]any, q url.Values, skip ...string) bool {
	for key, vals := range q {
		if reservedParams[key] || contains(skip, key) || len(vals) == 0 || vals[0] == "" {
			continue
		}
		v, ok := obj[key]
		if !ok || v == nil {
			return false
		}
		if fmt.Sprint(v) != vals[0] {
			return false
		}
	}
	if term := strings.ToLower(strings.TrimSpace(q.Get("search"))); term != "" {
		for _, v := range obj {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedIDs[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (s *Server) paginate(r *http.Request, results []any) domain.Page[any] {
	size := s.pageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		size = v
	}
	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	out := domain.Page[any]{Count: len(results), Results: []any{}}
	start := (page - 1) * size
	if start < len(results) {
		end := start + size
		if end > len(results) {
			end = len(results)
		}
		out.Results = results[start:end]
	}
	link := func(p int) *string {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(p))
		u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
		s := u.String()
		return &s
	}
	if start+size < len(results) {
		out.Next = link(page + 1)
	}
	if page > 1 {
		out.Previous = link(page - 1)
	}
	return out
}
