// Package prompt loads the prompt template registry, a JSON document laid out
// as stage -> kind -> subset -> template.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/finprep/internal/hash"
	"github.com/ogulcanaydogan/finprep/pkg/schema"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"github.com/tidwall/gjson"
)

const DefaultFile = "prompt.json"

// Reader fetches raw bytes from a dataset location.
type Reader interface {
	Read(ctx context.Context, location string) ([]byte, error)
}

type Registry struct {
	source string
	raw    []byte
	digest string
}

// Load reads and validates the registry at location. schemaPath, when set,
// names an extra JSON Schema the document must also satisfy.
func Load(ctx context.Context, r Reader, location, schemaPath string) (*Registry, error) {
	raw, err := r.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("load prompt registry: %w", err)
	}
	reg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	reg.source = location
	if schemaPath == "" {
		return reg, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalid, location, err)
	}
	violations, err := schema.Validate(schemaPath, doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", types.ErrInvalid, location, strings.Join(violations, "; "))
	}
	return reg, nil
}

// Parse validates raw against the built-in registry schema.
func Parse(raw []byte) (*Registry, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: prompt registry is not valid JSON", types.ErrInvalid)
	}
	violations, err := schema.ValidatePromptRegistry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalid, err)
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("%w: prompt registry: %s", types.ErrInvalid, strings.Join(violations, "; "))
	}
	return &Registry{raw: raw, digest: hash.DigestBytes(raw)}, nil
}

// Template returns the template registered under stage, kind and subset.
func (r *Registry) Template(stage, kind, subset string) (string, error) {
	res := gjson.GetBytes(r.raw, path(stage, kind, subset))
	if !res.Exists() || res.Type != gjson.String {
		return "", fmt.Errorf("%w: prompt not found for subset '%s'", types.ErrInvalid, subset)
	}
	return res.String(), nil
}

// Subsets lists the subset names registered under stage and kind, sorted.
func (r *Registry) Subsets(stage, kind string) []string {
	var names []string
	gjson.GetBytes(r.raw, path(stage, kind)).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			names = append(names, key.String())
		}
		return true
	})
	sort.Strings(names)
	return names
}

func (r *Registry) Digest() string { return r.digest }

func (r *Registry) Source() string { return r.source }

func path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = gjson.Escape(p)
	}
	return strings.Join(escaped, ".")
}

// Unavailable stands in for a registry that failed to load. Every lookup
// returns the load error, so each subset reports it on its own.
type Unavailable struct {
	Err error
}

func (u Unavailable) Template(stage, kind, subset string) (string, error) {
	return "", u.Err
}
