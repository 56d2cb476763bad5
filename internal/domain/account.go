package domain

import "time"

// Role groups permission codenames. Superuser roles implicitly grant everything.
type Role struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Permissions     []string  `json:"permissions"`
	IsSuperuserRole bool      `json:"is_superuser_role"`
	IsDefault       bool      `json:"is_default"`
	UserCount       int       `json:"user_count,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Permission is an entry of the backend permission catalog.
type Permission struct {
	Codename    string `json:"codename"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// User is an account as seen by the back-office. Role is a reference, not ownership.
type User struct {
	ID          int        `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	Role        *Role      `json:"role,omitempty"`
	DateJoined  time.Time  `json:"date_joined,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// FullName joins first and last name, falling back to the email.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// ActivityLog is one entry of the backend audit trail.
type ActivityLog struct {
	ID           int            `json:"id"`
	User         *int           `json:"user"`
	UserEmail    string         `json:"user_email,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Description  string         `json:"description,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
