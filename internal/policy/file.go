package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a rule table:
//
//	default: deny
//	rules:
//	  - methods: [GET]
//	    path: /medicines/**
//	    access: public
//	  - methods: [POST, PUT, PATCH, DELETE]
//	    path: /medicines/**
//	    role: ROLE_ADMIN
type File struct {
	Default string     `yaml:"default"`
	Rules   []FileRule `yaml:"rules"`
}

// FileRule is one entry of a File. Exactly one of Access and Role is set.
// An empty Methods list means every method.
type FileRule struct {
	Methods []string `yaml:"methods"`
	Path    string   `yaml:"path"`
	Access  string   `yaml:"access"`
	Role    string   `yaml:"role"`
}

// LoadFile reads a rule table from path. fallback applies when the file
// does not set its own default.
func LoadFile(path string, fallback Default) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	p, err := Parse(bytes.NewReader(data), fallback)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML rule table.
func Parse(r io.Reader, fallback Default) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	def := fallback
	if strings.TrimSpace(f.Default) != "" {
		parsed, err := ParseDefault(f.Default)
		if err != nil {
			return nil, err
		}
		def = parsed
	}

	var rules []Rule
	for i, fr := range f.Rules {
		req, err := fr.requirement()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, fr.Path, err)
		}
		methods := fr.Methods
		if len(methods) == 0 {
			methods = []string{AnyMethod}
		}
		for _, m := range methods {
			rules = append(rules, Rule{Method: m, Path: fr.Path, Requirement: req})
		}
	}
	return New(def, rules...)
}

func (fr FileRule) requirement() (Requirement, error) {
	access := strings.ToLower(strings.TrimSpace(fr.Access))
	role := strings.TrimSpace(fr.Role)
	switch {
	case role != "" && access != "" && access != "role":
		return Requirement{}, fmt.Errorf("set either access or role, not both")
	case role != "":
		return RequireRole(role), nil
	case access == "public" || access == "permit":
		return PermitAll(), nil
	case access == "authenticated":
		return RequireAuth(), nil
	case access == "":
		return Requirement{}, fmt.Errorf("access or role is required")
	default:
		return Requirement{}, fmt.Errorf("unknown access %q", fr.Access)
	}
}
