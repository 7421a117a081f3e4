// Package access maps a credential's role claim to the environments it may target.
// Submissions to an environment the role does not grant are blocked client-side.
package access

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/simrelease/simrelease/internal/core"
)

// RoleClaim is the token claim carrying the operator role.
const RoleClaim = "userType"

// Rules lists role names per category. A role in none of them grants nothing.
type Rules struct {
	ProdOnly []string
	UATOnly  []string
	Both     []string
}

// DefaultRules is the built-in role table.
var DefaultRules = Rules{
	ProdOnly: []string{"boa_activations"},
	UATOnly:  []string{"crm_it_team", "digital_factory", "roaming_team"},
	Both:     []string{"support1515"},
}

// Grants is the per-environment permission pair for a role.
type Grants struct {
	Prod bool `json:"prod"`
	UAT  bool `json:"uat"`
}

// Allows reports whether env is granted.
func (g Grants) Allows(env core.Environment) bool {
	switch env {
	case core.EnvProd:
		return g.Prod
	case core.EnvUAT:
		return g.UAT
	}
	return false
}

// Policy evaluates roles against a rule table.
type Policy struct {
	rules Rules
}

// NewPolicy creates a policy. Empty categories in overrides keep the defaults.
func NewPolicy(overrides Rules) *Policy {
	r := DefaultRules
	if len(overrides.ProdOnly) > 0 {
		r.ProdOnly = overrides.ProdOnly
	}
	if len(overrides.UATOnly) > 0 {
		r.UATOnly = overrides.UATOnly
	}
	if len(overrides.Both) > 0 {
		r.Both = overrides.Both
	}
	return &Policy{rules: r}
}

// Permissions returns the grants for role. Pure; unknown and empty roles get none.
func (p *Policy) Permissions(role string) Grants {
	if role == "" {
		return Grants{}
	}
	both := contains(p.rules.Both, role)
	return Grants{
		Prod: both || contains(p.rules.ProdOnly, role),
		UAT:  both || contains(p.rules.UATOnly, role),
	}
}

// Check returns a *Denied error when role may not target env.
func (p *Policy) Check(role string, env core.Environment) error {
	if p.Permissions(role).Allows(env) {
		return nil
	}
	return &Denied{Role: role, Environment: env}
}

// Permissions evaluates role against DefaultRules.
func Permissions(role string) Grants {
	return NewPolicy(Rules{}).Permissions(role)
}

// RoleFromToken reads the role claim from a JWT without verifying its
// signature; the client holds no key. Any decoding failure yields "".
func RoleFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	role, _ := claims[RoleClaim].(string)
	return role
}

// Denied is returned when a role lacks permission for an environment.
type Denied struct {
	Role        string
	Environment core.Environment
}

func (d *Denied) Error() string {
	role := d.Role
	if role == "" {
		role = "(none)"
	}
	return fmt.Sprintf("access denied: role %s may not target %s", role, d.Environment)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
