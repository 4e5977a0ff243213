package models

import (
	"time"
)

// Account roles. A role is plain data; what a role may do is resolved through
// the capability table below rather than through per-role types.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Capabilities gated by role.
const (
	CapListAccounts  = "accounts:list"
	CapAdjustBalance = "balance:adjust"
)

var roleCapabilities = map[string]map[string]bool{
	RoleUser:    {},
	RoleManager: {CapListAccounts: true},
	RoleAdmin:   {CapListAccounts: true, CapAdjustBalance: true},
}

// RoleCan reports whether the given role grants the capability.
// Unknown roles grant nothing.
func RoleCan(role, capability string) bool {
	return roleCapabilities[role][capability]
}

// ValidRole reports whether role is one of the known role tags.
func ValidRole(role string) bool {
	_, ok := roleCapabilities[role]
	return ok
}

type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
