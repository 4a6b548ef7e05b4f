package model

import (
    "strings"
    "time"

    "github.com/google/uuid"
)

// User is a principal as stored in the `users` table.  Username, email and
// phone are each unique.  Rows are never hard-deleted by the session core;
// IsActive=false is how an account is switched off.
//
// Fields:
//  ID           – UUID primary key, stored as CHAR(36).
//  Username     – login name, matched case-insensitively.
//  Email        – unique email address, stored lower-cased.
//  Phone        – unique phone number.
//  PasswordHash – bcrypt hash, never serialized.
//  Role         – enumerated role, see Role.
//  IsActive     – whether the account may authenticate.
//  IsVerified   – whether contact details were confirmed.
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uuid.UUID `json:"id"`
    Username     string    `json:"username"`
    Email        string    `json:"email"`
    Phone        string    `json:"phone"`
    PasswordHash string    `json:"-"`
    Role         Role      `json:"role"`
    IsActive     bool      `json:"is_active"`
    IsVerified   bool      `json:"is_verified"`
    CreatedAt    time.Time `json:"created_at"`
}

// Can reports whether the user's role grants capability c.  Inactive users
// hold no capabilities.
func (u User) Can(c Capability) bool {
    return u.IsActive && u.Role.Can(c)
}

// Role is the enumerated role of a principal.
type Role string

const (
    RoleCustomer  Role = "customer"
    RolePerformer Role = "performer"
    RoleAdmin     Role = "admin"
)

// Capability names one thing a role is allowed to do.
type Capability string

const (
    CapChat      Capability = "chat"
    CapListUsers Capability = "users:list"
)

var roleCapabilities = map[Role][]Capability{
    RoleCustomer:  {CapChat},
    RolePerformer: {CapChat},
    RoleAdmin:     {CapChat, CapListUsers},
}

// ParseRole maps free-form input onto a role.  Unknown values and attempts to
// self-assign admin fall back to customer.
func ParseRole(s string) Role {
    switch Role(strings.ToLower(strings.TrimSpace(s))) {
    case RolePerformer:
        return RolePerformer
    default:
        return RoleCustomer
    }
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    _, ok := roleCapabilities[r]
    return ok
}

// Can reports whether the role grants capability c.
func (r Role) Can(c Capability) bool {
    for _, have := range roleCapabilities[r] {
        if have == c {
            return true
        }
    }
    return false
}
