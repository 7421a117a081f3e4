package access

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/simrelease/simrelease/internal/core"
)

func TestPermissionsTable(t *testing.T) {
	tests := []struct {
		role string
		want Grants
	}{
		{"boa_activations", Grants{Prod: true}},
		{"crm_it_team", Grants{UAT: true}},
		{"digital_factory", Grants{UAT: true}},
		{"roaming_team", Grants{UAT: true}},
		{"support1515", Grants{Prod: true, UAT: true}},
		{"", Grants{}},
		{"admin", Grants{}},
		{"SUPPORT1515", Grants{}},
		{" support1515", Grants{}},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := Permissions(tt.role); got != tt.want {
				t.Errorf("Permissions(%q) = %+v, want %+v", tt.role, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	p := NewPolicy(Rules{})

	if err := p.Check("boa_activations", core.EnvProd); err != nil {
		t.Errorf("expected PROD allowed: %v", err)
	}

	err := p.Check("boa_activations", core.EnvUAT)
	if err == nil {
		t.Fatal("expected UAT denied for boa_activations")
	}
	var d *Denied
	if !errors.As(fmt.Errorf("submit: %w", err), &d) {
		t.Fatalf("expected a wrapped *Denied to match, got %T", err)
	}
	if d.Environment != core.EnvUAT || d.Role != "boa_activations" {
		t.Errorf("unexpected denial detail: %+v", d)
	}
}

func TestOverridesReplaceOnlyGivenCategories(t *testing.T) {
	p := NewPolicy(Rules{Both: []string{"ops_lead"}})

	if g := p.Permissions("ops_lead"); !g.Prod || !g.UAT {
		t.Errorf("expected ops_lead both, got %+v", g)
	}
	if g := p.Permissions("support1515"); g.Prod || g.UAT {
		t.Errorf("support1515 should lose access once Both is overridden, got %+v", g)
	}
	if g := p.Permissions("boa_activations"); !g.Prod {
		t.Errorf("PROD-only default should remain, got %+v", g)
	}
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return tok
}

func TestRoleFromToken(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "jdoe", RoleClaim: "support1515"})

	if got := RoleFromToken(tok); got != "support1515" {
		t.Errorf("expected support1515, got %q", got)
	}
}

func TestRoleFromMalformedTokenIsUnknown(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"} {
		if got := RoleFromToken(tok); got != "" {
			t.Errorf("RoleFromToken(%q) = %q, want empty", tok, got)
		}
		if g := Permissions(RoleFromToken(tok)); g.Prod || g.UAT {
			t.Errorf("malformed token %q should grant nothing", tok)
		}
	}
}

func TestRoleClaimWrongTypeIsUnknown(t *testing.T) {
	tok := signed(t, jwt.MapClaims{RoleClaim: 42})
	if got := RoleFromToken(tok); got != "" {
		t.Errorf("expected empty role for non-string claim, got %q", got)
	}
}
