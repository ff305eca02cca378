// Package redact masks sensitive attribute values before spans leave the
// process. Filtering is pure: it never mutates its input, never raises, and
// a failure on one leaf passes that leaf through untouched.
package redact

import (
	"fmt"
	"strings"

	"github.com/spanflow/spanflow-go/core/span"
)

// Mask replaces every value a rule matches.
const Mask = "****"

// Rule names one redaction behavior that can be toggled on.
type Rule string

const (
	RemovePasswords   Rule = "RemovePasswords"
	RemoveJWT         Rule = "RemoveJWT"
	RemoveAuthHeaders Rule = "RemoveAuthHeaders"
	RemoveAPIKeys     Rule = "RemoveAPIKeys"
)

// DefaultRules is the rule set applied when none is configured.
func DefaultRules() []Rule {
	return []Rule{RemovePasswords, RemoveJWT}
}

// Key-name fragments that mark a value as an API credential.
var apiKeyKeyFragments = []string{
	"api_key",
	"apikey",
	"api-key",
	"secret_key",
	"secret-key",
	"access_key",
}

// Well-known provider token prefixes.
var apiKeyValuePrefixes = []string{
	"sk-",
	"pk-",
	"rk-",
	"ghp_",
	"gho_",
	"github_pat_",
	"xoxb-",
	"xoxp-",
	"AKIA",
	"AIza",
}

// ParseRules parses a comma-separated rule list, e.g.
// "RemovePasswords,RemoveJWT". Empty input yields the default set.
func ParseRules(s string) ([]Rule, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultRules(), nil
	}
	var rules []Rule
	for _, part := range strings.Split(s, ",") {
		name := Rule(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		switch name {
		case RemovePasswords, RemoveJWT, RemoveAuthHeaders, RemoveAPIKeys:
			rules = append(rules, name)
		default:
			return nil, fmt.Errorf("unknown redaction rule %q", name)
		}
	}
	return rules, nil
}

// Filter applies the enabled rules to attribute key/value pairs.
type Filter struct {
	passwords   bool
	jwt         bool
	authHeaders bool
	apiKeys     bool
}

// New builds a filter with the given rules enabled.
func New(rules ...Rule) *Filter {
	f := &Filter{}
	for _, r := range rules {
		switch r {
		case RemovePasswords:
			f.passwords = true
		case RemoveJWT:
			f.jwt = true
		case RemoveAuthHeaders:
			f.authHeaders = true
		case RemoveAPIKeys:
			f.apiKeys = true
		}
	}
	return f
}

// Apply filters a single (key, value) pair. Falsy values pass through, and
// an internal failure returns the original value for this leaf only.
func (f *Filter) Apply(key string, v span.Value) (out span.Value) {
	defer func() {
		if recover() != nil {
			out = v
		}
	}()

	if v.IsZero() {
		return v
	}

	lowerKey := strings.ToLower(key)

	if f.passwords && strings.Contains(lowerKey, "password") {
		return span.StringValue(Mask)
	}
	if f.jwt && isJWT(v) {
		return span.StringValue(Mask)
	}
	if f.authHeaders && lowerKey == "authorization" {
		return span.StringValue(Mask)
	}
	if f.apiKeys && (keyLooksLikeAPIKey(lowerKey) || valueLooksLikeAPIKey(v)) {
		return span.StringValue(Mask)
	}
	return v
}

// ApplyRecursive walks containers and filters every (key, value) leaf pair.
// Keys are never rewritten. Elements of a sequence inherit the key of the
// attribute that holds the sequence.
func (f *Filter) ApplyRecursive(key string, v span.Value) span.Value {
	switch v.Kind() {
	case span.KindMap:
		return span.MapValue(f.ApplyMap(v.Map()))
	case span.KindSlice:
		in := v.Slice()
		out := make([]span.Value, len(in))
		for i, e := range in {
			out[i] = f.ApplyRecursive(key, e)
		}
		return span.SliceValue(out...)
	default:
		return f.Apply(key, v)
	}
}

// ApplyMap filters every entry of an attribute mapping, recursing into
// nested containers. The input map is left untouched.
func (f *Filter) ApplyMap(m span.Map) span.Map {
	if len(m) == 0 {
		return m
	}
	out := make(span.Map, len(m))
	for i, kv := range m {
		out[i] = span.KeyValue{Key: kv.Key, Value: f.ApplyRecursive(kv.Key, kv.Value)}
	}
	return out
}

// isJWT matches strings of exactly three non-empty dot-separated segments
// starting with the base64 header prefix "eyJ".
func isJWT(v span.Value) bool {
	if v.Kind() != span.KindString {
		return false
	}
	s := v.Str()
	if !strings.HasPrefix(s, "eyJ") {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func keyLooksLikeAPIKey(lowerKey string) bool {
	for _, frag := range apiKeyKeyFragments {
		if strings.Contains(lowerKey, frag) {
			return true
		}
	}
	return false
}

func valueLooksLikeAPIKey(v span.Value) bool {
	if v.Kind() != span.KindString {
		return false
	}
	s := v.Str()
	for _, prefix := range apiKeyValuePrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
