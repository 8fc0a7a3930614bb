package models

// Role names carried in the token scope claim. A subject holds exactly one.
// Both are seeded by the initial migration.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)
