package policy

import "github.com/hongminglow/medicart-identity/internal/models"

// AuthServiceRules is the table the identity service runs with when no
// policy file is configured. Unmatched requests are denied.
func AuthServiceRules() []Rule {
	return []Rule{
		{Method: "GET", Path: "/health", Requirement: PermitAll()},
		{Method: "POST", Path: "/auth/register", Requirement: PermitAll()},
		{Method: "POST", Path: "/auth/login", Requirement: PermitAll()},
		{Method: "POST", Path: "/auth/otp/**", Requirement: PermitAll()},
		{Method: "GET", Path: "/auth/validate", Requirement: RequireAuth()},
		{Method: "GET", Path: "/auth/me", Requirement: RequireAuth()},
		{Method: "GET", Path: "/auth/users/{id}", Requirement: RequireAuth()},
		{Method: "PUT", Path: "/auth/users/{id}", Requirement: RequireAuth()},
		{Method: "POST", Path: "/grpc.health.v1.Health/*", Requirement: PermitAll()},
	}
}

// EdgeRules is the default table for the edge in front of the catalogue,
// cart, payment and analytics services.
func EdgeRules() []Rule {
	admin := RequireRole(models.RoleAdmin)
	return []Rule{
		{Method: "GET", Path: "/health", Requirement: PermitAll()},
		{Method: "GET", Path: "/medicines/**", Requirement: PermitAll()},
		{Method: "GET", Path: "/batches/**", Requirement: PermitAll()},
		{Method: "POST", Path: "/medicines/**", Requirement: admin},
		{Method: "PUT", Path: "/medicines/**", Requirement: admin},
		{Method: "PATCH", Path: "/medicines/**", Requirement: admin},
		{Method: "DELETE", Path: "/medicines/**", Requirement: admin},
		{Method: "POST", Path: "/batches/**", Requirement: admin},
		{Method: "PUT", Path: "/batches/**", Requirement: admin},
		{Method: "PATCH", Path: "/batches/**", Requirement: admin},
		{Method: "DELETE", Path: "/batches/**", Requirement: admin},
		{Method: "GET", Path: "/api/payment/**", Requirement: PermitAll()},
		{Method: "POST", Path: "/api/payment/**", Requirement: PermitAll()},
		{Method: AnyMethod, Path: "/api/analytics/**", Requirement: PermitAll()},
		{Method: AnyMethod, Path: "/api/reports/**", Requirement: PermitAll()},
		{Method: AnyMethod, Path: "/**", Requirement: RequireAuth()},
	}
}
