package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/domain"
)

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.require(w, r, auth.PermManageUsers) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/account/users/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			s.listUsers(w, r)
		case http.MethodPost:
			s.createUser(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}
	id, action, ok := splitID(rest)
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		acc, found := s.users[id]
		var u domain.User
		if found {
			u = s.userView(acc)
		}
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, u)
	case http.MethodPatch, http.MethodPut:
		s.updateUser(w, r, id)
	case http.MethodDelete:
		if self, _ := currentUserID(r); self == id {
			writeError(w, http.StatusBadRequest, "You cannot delete your own account.")
			return
		}
		s.deleteRecord(w, r, id, "user", func() bool {
			_, ok := s.users[id]
			delete(s.users, id)
			return ok
		})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, _ := strconv.Atoi(q.Get("role"))
	s.mu.Lock()
	var results []any
	for _, id := range sortedIDs(s.users) {
		u := s.userView(s.users[id])
		if role > 0 && (u.Role == nil || u.Role.ID != role) {
			continue
		}
		if matches(toMap(u), q, "role") {
			results = append(results, u)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}

type userInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	RoleID    *int   `json:"role_id"`
	IsActive  bool   `json:"is_active"`
	IsStaff   bool   `json:"is_staff"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in userInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		errs.add("email", "Enter a valid email address.")
	}
	if len(in.Password) < 8 {
		errs.add("password", "Ensure this field has at least 8 characters.")
	}
	var role *domain.Role
	s.mu.Lock()
	if email != "" && s.findByEmail(email) != nil {
		errs.add("email", "user with this email already exists.")
	}
	if in.RoleID != nil {
		if _, ok := s.roles[*in.RoleID]; ok {
			role = &domain.Role{ID: *in.RoleID}
		} else {
			errs.add("role_id", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *in.RoleID))
		}
	}
	s.mu.Unlock()
	if errs.write(w) {
		return
	}
	u, err := s.AddUser(domain.User{
		Email:     email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		IsActive:  in.IsActive,
		IsStaff:   in.IsStaff,
		Role:      role,
	}, in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.recordRequest(r, "create", "user", u.ID, u.Email)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, id int) {
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var hash string
	if pw, ok := fields["password"].(string); ok {
		if len(pw) < 8 {
			errs := fieldErrors{}
			errs.add("password", "Ensure this field has at least 8 characters.")
			errs.write(w)
			return
		}
		h, err := auth.HashPassword(pw)
		if errors.Is(err, auth.ErrInvalidInput) {
			errs := fieldErrors{}
			errs.add("password", "Ensure this field has no more than 72 characters.")
			errs.write(w)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		hash = h
	}
	rawRole, setRole := fields["role_id"]
	for _, k := range []string{"password", "role_id", "role", "email", "date_joined", "last_login"} {
		delete(fields, k)
	}

	s.mu.Lock()
	acc, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if setRole {
		switch v := rawRole.(type) {
		case nil:
			acc.user.Role = nil
		case float64:
			if _, exists := s.roles[int(v)]; !exists {
				s.mu.Unlock()
				errs := fieldErrors{}
				errs.add("role_id", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", int(v)))
				errs.write(w)
				return
			}
			acc.user.Role = &domain.Role{ID: int(v)}
		}
	}
	if err := mergePatch(&acc.user, fields); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hash != "" {
		acc.hash = hash
	}
	u := s.userView(acc)
	s.mu.Unlock()

	s.recordRequest(r, "update", "user", id, u.Email)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !s.require(w, r, auth.PermManageRoles) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/account/roles/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			s.mu.Lock()
			var results []any
			for _, id := range sortedIDs(s.roles) {
				results = append(results, s.roleView(id))
			}
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, s.paginate(r, results))
		case http.MethodPost:
			s.createRole(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}
	id, action, ok := splitID(rest)
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		_, found := s.roles[id]
		var out domain.Role
		if found {
			out = s.roleView(id)
		}
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPatch, http.MethodPut:
		s.updateRole(w, r, id)
	case http.MethodDelete:
		s.deleteRole(w, r, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// roleView fills in the user count. Requires s.mu.
func (s *Server) roleView(id int) domain.Role {
	role := *s.roles[id]
	role.Permissions = append([]string{}, role.Permissions...)
	role.UserCount = 0
	for _, acc := range s.users {
		if acc.user.Role != nil && acc.user.Role.ID == id {
			role.UserCount++
		}
	}
	return role
}

func validatePermissions(errs fieldErrors, perms []string) {
	for _, p := range perms {
		if !auth.KnownPermission(p) {
			errs.add("permissions", fmt.Sprintf("Unknown permission %q.", p))
		}
	}
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var in domain.Role
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		errs.add("name", "This field is required.")
	}
	validatePermissions(errs, in.Permissions)
	s.mu.Lock()
	for _, existing := range s.roles {
		if in.Name != "" && strings.EqualFold(existing.Name, in.Name) {
			errs.add("name", "role with this name already exists.")
		}
	}
	s.mu.Unlock()
	if errs.write(w) {
		return
	}
	sort.Strings(in.Permissions)
	role := s.AddRole(domain.Role{
		Name:            in.Name,
		Description:     in.Description,
		Permissions:     in.Permissions,
		IsSuperuserRole: in.IsSuperuserRole,
		IsDefault:       in.IsDefault,
	})
	s.recordRequest(r, "create", "role", role.ID, role.Name)
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request, id int) {
	var fields map[string]any
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delete(fields, "user_count")
	delete(fields, "created_at")

	s.mu.Lock()
	role, ok := s.roles[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	next := *role
	if err := mergePatch(&next, fields); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	errs := fieldErrors{}
	validatePermissions(errs, next.Permissions)
	if len(errs) > 0 {
		s.mu.Unlock()
		errs.write(w)
		return
	}
	next.UpdatedAt = s.now().UTC()
	*role = next
	out := s.roleView(id)
	s.mu.Unlock()

	s.recordRequest(r, "update", "role", id, out.Name)
	writeJSON(w, http.StatusOK, out)
}

// deleteRole refuses superuser roles and detaches the role from its users.
func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request, id int) {
	s.mu.Lock()
	role, ok := s.roles[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}
	if role.IsSuperuserRole {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Superuser roles cannot be deleted.")
		return
	}
	delete(s.roles, id)
	for _, acc := range s.users {
		if acc.user.Role != nil && acc.user.Role.ID == id {
			acc.user.Role = nil
		}
	}
	name := role.Name
	s.mu.Unlock()

	s.recordRequest(r, "delete", "role", id, name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.require(w, r, auth.PermManageRoles) {
		return
	}
	writeJSON(w, http.StatusOK, auth.BuiltinPermissions)
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.require(w, r, auth.PermViewActivityLogs) {
		return
	}
	s.mu.Lock()
	results := make([]any, 0, len(s.activity))
	// newest first
	for i := len(s.activity) - 1; i >= 0; i-- {
		entry := s.activity[i]
		if matches(toMap(entry), r.URL.Query()) {
			results = append(results, entry)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.paginate(r, results))
}
