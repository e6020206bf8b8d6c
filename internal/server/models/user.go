// Package models contains the persisted entities shared by repositories
// and services.
package models

import "time"

// Role names form a fixed enumeration seeded by migrations. Every user
// holds at least one role at all times.
const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// User is the stored user record. Password holds the bcrypt hash, never
// the plaintext.
type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Age       int
	Roles     []string
	CreatedAt time.Time
}

// Role is a named role row.
type Role struct {
	ID   int64
	Name string
}

// PublicUser is the outward projection of a User: everything except the
// password hash. Token claims and HTTP responses are built from this view.
type PublicUser struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Age   int      `json:"age"`
	Roles []string `json:"roles"`
}

// Public returns the password-free projection of u.
func (u *User) Public() *PublicUser {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return &PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
		Roles: roles,
	}
}

// HasRole reports whether the user currently holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}
