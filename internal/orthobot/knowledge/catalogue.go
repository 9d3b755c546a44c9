// Package knowledge decides, per query, which knowledge source feeds the
// prompt: a curated catalogue entry or a vector similarity search.
package knowledge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

//go:embed catalogue.schema.json
var catalogueSchemaJSON string

var catalogueSchema = jsonschema.MustCompileString("catalogue.schema.json", catalogueSchemaJSON)

// Entry is one curated knowledge item.
type Entry struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	Summary  string   `yaml:"summary" json:"summary,omitempty"`
	URL      string   `yaml:"url" json:"url,omitempty"`
	Content  string   `yaml:"content" json:"content"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Catalogue is the ordered curated knowledge table.
type Catalogue struct {
	// Identity keywords gate the catalogue: a query must mention one of them.
	Identity []string `yaml:"identity"`
	// Default is the ID of the entry returned when no entry keyword matches.
	Default string `yaml:"default"`
	// Entries are matched in priority order.
	Entries []Entry `yaml:"entries"`
}

// DefaultCatalogue parses the catalogue compiled into the binary.
func DefaultCatalogue() (*Catalogue, error) {
	return ParseCatalogue(defaultCatalogue)
}

// LoadCatalogue reads a catalogue file. An empty path selects the built-in
// catalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return DefaultCatalogue()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes YAML, validates it against the catalogue schema
// and checks the routing invariants (unique IDs, one owner per keyword,
// default entry present).
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("knowledge: parse catalogue: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("knowledge: decode catalogue: %w", err)
	}
	cat.normalize()
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// validateSchema round-trips the YAML document through JSON so the
// validator sees JSON-native types.
func validateSchema(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("knowledge: catalogue is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("knowledge: re-decode catalogue: %w", err)
	}
	if err := catalogueSchema.Validate(v); err != nil {
		return fmt.Errorf("knowledge: invalid catalogue: %w", err)
	}
	return nil
}

func (c *Catalogue) normalize() {
	for i, kw := range c.Identity {
		c.Identity[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	for i := range c.Entries {
		for j, kw := range c.Entries[i].Keywords {
			c.Entries[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
}

func (c *Catalogue) validate() error {
	ids := make(map[string]bool, len(c.Entries))
	owners := make(map[string]string)
	for _, e := range c.Entries {
		if ids[e.ID] {
			return fmt.Errorf("knowledge: duplicate entry id %q", e.ID)
		}
		ids[e.ID] = true
		for _, kw := range e.Keywords {
			if owner, ok := owners[kw]; ok {
				return fmt.Errorf("knowledge: keyword %q belongs to both %q and %q", kw, owner, e.ID)
			}
			owners[kw] = e.ID
		}
	}
	if !ids[c.Default] {
		return fmt.Errorf("knowledge: default entry %q not found", c.Default)
	}
	return nil
}

// Match returns the curated entry for query, or nil when the query does not
// mention an identity keyword.
func (c *Catalogue) Match(query string) *Entry {
	lower := strings.ToLower(query)
	if !containsAny(lower, c.Identity) {
		return nil
	}
	for i := range c.Entries {
		if containsAny(lower, c.Entries[i].Keywords) {
			return &c.Entries[i]
		}
	}
	return c.entry(c.Default)
}

func (c *Catalogue) entry(id string) *Entry {
	for i := range c.Entries {
		if c.Entries[i].ID == id {
			return &c.Entries[i]
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
