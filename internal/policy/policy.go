// Package policy decides whether a request may reach its handler, based on
// an ordered table of method and path rules and the request principal.
//
// The first matching rule wins. When no rule matches, the table's default
// applies. Denials are uniform: anonymous callers get "unauthorized", callers
// with a principal get "forbidden", and neither names the rule involved.
package policy

import (
	"fmt"
	"strings"

	"github.com/hongminglow/medicart-identity/internal/authn"
)

// AnyMethod matches every HTTP method.
const AnyMethod = "*"

// Access is the kind of requirement a rule enforces.
type Access int

const (
	Public Access = iota
	Authenticated
	RoleRequired
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case RoleRequired:
		return "role"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Requirement is what a matching request must satisfy.
type Requirement struct {
	Access Access
	Role   string
}

// PermitAll lets any request through.
func PermitAll() Requirement { return Requirement{Access: Public} }

// RequireAuth needs any principal.
func RequireAuth() Requirement { return Requirement{Access: Authenticated} }

// RequireRole needs a principal holding exactly role.
func RequireRole(role string) Requirement { return Requirement{Access: RoleRequired, Role: role} }

func (r Requirement) String() string {
	if r.Access == RoleRequired {
		return "role=" + r.Role
	}
	return r.Access.String()
}

func (r Requirement) satisfiedBy(p *authn.Principal) bool {
	switch r.Access {
	case Public:
		return true
	case Authenticated:
		return p != nil
	case RoleRequired:
		return p.HasRole(r.Role)
	default:
		return false
	}
}

// Rule maps a method and path pattern to a requirement.
type Rule struct {
	Method      string
	Path        string
	Requirement Requirement
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s -> %s", r.Method, r.Path, r.Requirement)
}

// Decision is the outcome of evaluating a request.
type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "unauthorized"
	case DenyForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d == Allow }

// Default is what happens to requests no rule matches.
type Default int

const (
	DefaultDeny Default = iota
	DefaultPermit
)

// ParseDefault reads "deny" or "permit".
func ParseDefault(s string) (Default, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deny":
		return DefaultDeny, nil
	case "permit", "allow":
		return DefaultPermit, nil
	default:
		return DefaultDeny, fmt.Errorf("unknown policy default %q (want deny or permit)", s)
	}
}

func (d Default) String() string {
	if d == DefaultPermit {
		return "permit"
	}
	return "deny"
}

type compiledRule struct {
	Rule
	pattern pathPattern
}

// Policy is an immutable, ordered rule table.
type Policy struct {
	rules []compiledRule
	def   Default
}

// New compiles rules in order. It fails on an invalid method or path pattern.
func New(def Default, rules ...Rule) (*Policy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		method := strings.ToUpper(strings.TrimSpace(rule.Method))
		if method == "" {
			return nil, fmt.Errorf("rule %d: method is required", i)
		}
		if method != AnyMethod && strings.ContainsAny(method, " */") {
			return nil, fmt.Errorf("rule %d: invalid method %q", i, rule.Method)
		}
		pattern, err := compilePath(rule.Path)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if rule.Requirement.Access == RoleRequired && strings.TrimSpace(rule.Requirement.Role) == "" {
			return nil, fmt.Errorf("rule %d: role requirement needs a role name", i)
		}
		rule.Method = method
		compiled = append(compiled, compiledRule{Rule: rule, pattern: pattern})
	}
	return &Policy{rules: compiled, def: def}, nil
}

// MustNew is New for tables known to be valid.
func MustNew(def Default, rules ...Rule) *Policy {
	p, err := New(def, rules...)
	if err != nil {
		panic(err)
	}
	return p
}

// Rules returns the table in evaluation order.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// DefaultDecision reports how unmatched requests are treated.
func (p *Policy) DefaultDecision() Default {
	return p.def
}

// Decide evaluates method and path for principal, which is nil for anonymous callers.
func (p *Policy) Decide(method, urlPath string, principal *authn.Principal) Decision {
	if !isClean(urlPath) {
		return deny(principal)
	}
	method = strings.ToUpper(method)
	parts := splitPath(urlPath)
	for _, rule := range p.rules {
		if rule.Method != AnyMethod && rule.Method != method {
			continue
		}
		if !rule.pattern.match(parts) {
			continue
		}
		if rule.Requirement.satisfiedBy(principal) {
			return Allow
		}
		return deny(principal)
	}
	if p.def == DefaultPermit {
		return Allow
	}
	return deny(principal)
}

func deny(principal *authn.Principal) Decision {
	if principal == nil {
		return DenyUnauthenticated
	}
	return DenyForbidden
}
