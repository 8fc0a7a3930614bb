package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/medicart-identity/internal/models"
)

func TestParse_ExpandsMethodsInOrder(t *testing.T) {
	p, err := Parse(strings.NewReader(`
default: permit
rules:
  - methods: [get, POST]
    path: /items/**
    role: ROLE_ADMIN
  - path: /open
    access: public
`), DefaultDeny)
	require.NoError(t, err)

	assert.Equal(t, DefaultPermit, p.DefaultDecision())
	assert.Equal(t, []Rule{
		{Method: "GET", Path: "/items/**", Requirement: RequireRole(models.RoleAdmin)},
		{Method: "POST", Path: "/items/**", Requirement: RequireRole(models.RoleAdmin)},
		{Method: AnyMethod, Path: "/open", Requirement: PermitAll()},
	}, p.Rules())
}

func TestParse_FallbackDefault(t *testing.T) {
	p, err := Parse(strings.NewReader("rules: []\n"), DefaultPermit)
	require.NoError(t, err)
	assert.Equal(t, DefaultPermit, p.DefaultDecision())

	p, err = Parse(strings.NewReader(""), DefaultDeny)
	require.NoError(t, err)
	assert.Empty(t, p.Rules())
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "rules:\n  - path: /x\n    acess: public\n",
		"no requirement":  "rules:\n  - path: /x\n",
		"both set":        "rules:\n  - path: /x\n    access: public\n    role: ROLE_ADMIN\n",
		"unknown access":  "rules:\n  - path: /x\n    access: sometimes\n",
		"bad default":     "default: maybe\n",
		"bad path":        "rules:\n  - path: x\n    access: public\n",
		"not yaml at all": "rules: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc), DefaultDeny)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_ShippedTablesMatchBuiltins(t *testing.T) {
	authTable, err := LoadFile("../../deploy/policies/auth-service.yaml", DefaultPermit)
	require.NoError(t, err)
	assert.Equal(t, DefaultDeny, authTable.DefaultDecision())
	assert.Equal(t, MustNew(DefaultDeny, AuthServiceRules()...).Rules(), authTable.Rules())

	edgeTable, err := LoadFile("../../deploy/policies/edge-service.yaml", DefaultPermit)
	require.NoError(t, err)
	assert.Equal(t, MustNew(DefaultDeny, EdgeRules()...).Rules(), edgeTable.Rules())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("does-not-exist.yaml", DefaultDeny)
	assert.Error(t, err)
}
