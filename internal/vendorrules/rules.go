// Package vendorrules loads the static brand dictionaries used to parse
// invoice product names.
package vendorrules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// VendorRules are the brand hints for one vendor.
type VendorRules struct {
	Aliases  map[string]string `yaml:"aliases"`
	Currency string            `yaml:"currency"`
	Brands   []string          `yaml:"brands"`
}

// Rules is the full brand dictionary.
type Rules struct {
	Aliases map[string]string      `yaml:"aliases"`
	Vendors map[string]VendorRules `yaml:"vendors"`
	Brands  []string               `yaml:"brands"`
}

// Default returns the embedded rule set.
func Default() (*Rules, error) {
	return Parse(defaultRulesYAML)
}

// Load reads rules from a YAML file.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor rules: %w", err)
	}
	return Parse(data)
}

// Parse decodes and normalizes a YAML rule set.
func Parse(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse vendor rules: %w", err)
	}

	rules.Brands = normalizeList(rules.Brands)
	rules.Aliases = normalizeMap(rules.Aliases)
	vendors := make(map[string]VendorRules, len(rules.Vendors))
	for key, v := range rules.Vendors {
		v.Brands = normalizeList(v.Brands)
		v.Aliases = normalizeMap(v.Aliases)
		v.Currency = strings.ToUpper(strings.TrimSpace(v.Currency))
		vendors[strings.ToUpper(strings.TrimSpace(key))] = v
	}
	rules.Vendors = vendors
	return &rules, nil
}

// Dictionary is the brand set in effect for one vendor.
type Dictionary struct {
	aliases map[string]string
	// prefixes holds every recognizable spelling, longest first.
	prefixes []string
}

// ForVendor merges the global dictionary with the vendor's own. An unknown or
// empty vendor gets the global dictionary.
func (r *Rules) ForVendor(vendorID string) *Dictionary {
	d := &Dictionary{aliases: make(map[string]string)}
	seen := make(map[string]bool)

	add := func(brands []string, aliases map[string]string) {
		for _, b := range brands {
			if !seen[b] {
				seen[b] = true
				d.prefixes = append(d.prefixes, b)
			}
		}
		for alias, canonical := range aliases {
			d.aliases[alias] = canonical
			if !seen[alias] {
				seen[alias] = true
				d.prefixes = append(d.prefixes, alias)
			}
		}
	}

	if r != nil {
		add(r.Brands, r.Aliases)
		if v, ok := r.Vendors[strings.ToUpper(strings.TrimSpace(vendorID))]; ok {
			add(v.Brands, v.Aliases)
		}
	}

	sort.SliceStable(d.prefixes, func(i, j int) bool {
		return len(d.prefixes[i]) > len(d.prefixes[j])
	})
	return d
}

// Currency returns the vendor's default invoice currency, if configured.
func (r *Rules) Currency(vendorID string) string {
	if r == nil {
		return ""
	}
	return r.Vendors[strings.ToUpper(strings.TrimSpace(vendorID))].Currency
}

// Canonical maps a brand spelling to its canonical form.
func (d *Dictionary) Canonical(brand string) string {
	b := strings.ToUpper(strings.TrimSpace(brand))
	if d == nil {
		return b
	}
	if c, ok := d.aliases[b]; ok {
		return c
	}
	return b
}

// DetectPrefix returns the canonical brand that name starts with, and the
// remainder of the name after it. The brand must end at a word boundary.
func (d *Dictionary) DetectPrefix(name string) (brand, rest string) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if d == nil {
		return "", upper
	}
	for _, prefix := range d.prefixes {
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		remainder := upper[len(prefix):]
		if remainder != "" && isWordChar(remainder[0]) {
			continue
		}
		return d.Canonical(prefix), strings.TrimSpace(remainder)
	}
	return "", upper
}

func isWordChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}
	return out
}
