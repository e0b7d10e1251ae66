// Package catalog holds the brand detection rules and curated branded
// servings used by the sanitizer and the brand provider.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/macrolog/internal/models"
	pkgconfig "github.com/starford/macrolog/pkg/config"
)

// DefaultCountry is used when a lookup carries no country code.
const DefaultCountry = "us"

//go:embed data/brands.yaml
var defaultData []byte

// Document is the YAML representation of a catalog.
type Document struct {
	Brands   []BrandDoc   `yaml:"brands"`
	Servings []ServingDoc `yaml:"servings"`
}

// Validate validates the document.
func (d *Document) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Brands),
		validation.Field(&d.Servings),
	)
}

// BrandDoc describes how a brand is recognized in free text.
type BrandDoc struct {
	Name     string   `yaml:"name"`
	Cues     []string `yaml:"cues"`
	Patterns []string `yaml:"patterns"`
}

// Validate validates the brand entry.
func (b BrandDoc) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Name, validation.Required),
	)
}

// ServingDoc is one curated branded serving.
type ServingDoc struct {
	Brand   string   `yaml:"brand"`
	Country string   `yaml:"country"`
	Item    string   `yaml:"item"`
	Aliases []string `yaml:"aliases"`
	Serving string   `yaml:"serving"`
	Size    string   `yaml:"size"`
	Label   string   `yaml:"label"`
	Grams   float64  `yaml:"grams"`
	Kcal    float64  `yaml:"kcal"`
	Protein float64  `yaml:"protein"`
	Carbs   float64  `yaml:"carbs"`
	Fat     float64  `yaml:"fat"`
	Fiber   float64  `yaml:"fiber"`
}

// Validate validates the serving entry.
func (s ServingDoc) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Brand, validation.Required),
		validation.Field(&s.Item, validation.Required),
		validation.Field(&s.Grams, validation.Required, validation.Min(0.0)),
		validation.Field(&s.Kcal, validation.Required, validation.Min(0.0)),
	)
}

// Serving is a compiled catalog entry.
type Serving struct {
	Key    string
	Label  string
	Grams  float64
	Macros models.Macros
}

// Match is the result of brand detection.
type Match struct {
	Brand string
	// Text is the matched substring.
	Text string
	// Cue is true when a product cue, not the brand name itself, matched.
	Cue bool
}

type brandRule struct {
	name     string
	cues     []*regexp.Regexp
	patterns []*regexp.Regexp
}

// Catalog is an immutable compiled snapshot.
type Catalog struct {
	brands   []brandRule
	servings map[string]Serving
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultData)
}

// Load reads a catalog file, or returns the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	var doc Document
	if err := pkgconfig.Load(path, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Compile(&doc)
}

// Parse decodes and compiles a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc Document
	if err := pkgconfig.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Compile(&doc)
}

// Compile builds a Catalog from a decoded document.
func Compile(doc *Document) (*Catalog, error) {
	c := &Catalog{servings: make(map[string]Serving)}

	for _, b := range doc.Brands {
		rule := brandRule{name: b.Name}
		for _, expr := range b.Cues {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("catalog: brand %q cue %q: %w", b.Name, expr, err)
			}
			rule.cues = append(rule.cues, re)
		}
		for _, expr := range b.Patterns {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("catalog: brand %q pattern %q: %w", b.Name, expr, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
		c.brands = append(c.brands, rule)
	}

	for _, s := range doc.Servings {
		label := s.Label
		if label == "" {
			label = s.Serving
		}
		if label == "" {
			label = s.Size
		}
		if label == "" {
			label = "serving"
		}
		entry := Serving{
			Label: label,
			Grams: s.Grams,
			Macros: models.Macros{
				Kcal:     s.Kcal,
				ProteinG: s.Protein,
				CarbsG:   s.Carbs,
				FatG:     s.Fat,
				FiberG:   s.Fiber,
			},
		}
		for _, item := range append([]string{s.Item}, s.Aliases...) {
			key := Key(s.Brand, s.Country, item, s.Serving, s.Size)
			entry.Key = key
			c.servings[key] = entry
		}
	}
	return c, nil
}

// DetectBrand finds a brand in name. Product cues of every brand are tried
// before any brand-name pattern.
func (c *Catalog) DetectBrand(name string) (Match, bool) {
	for _, b := range c.brands {
		for _, re := range b.cues {
			if m := re.FindString(name); m != "" {
				return Match{Brand: b.name, Text: m, Cue: true}, true
			}
		}
	}
	for _, b := range c.brands {
		for _, re := range b.patterns {
			if m := re.FindString(name); m != "" {
				return Match{Brand: b.name, Text: m}, true
			}
		}
	}
	return Match{}, false
}

// Lookup returns the most specific serving for the item, relaxing the key
// from brand+item+serving+size to brand+item.
func (c *Catalog) Lookup(brand, country, item, serving, size string) (Serving, bool) {
	for _, key := range candidateKeys(brand, country, item, serving, size) {
		if s, ok := c.servings[key]; ok {
			return s, true
		}
	}
	return Serving{}, false
}

// Len returns the number of serving keys.
func (c *Catalog) Len() int {
	return len(c.servings)
}

func candidateKeys(brand, country, item, serving, size string) []string {
	variants := [][2]string{
		{serving, size},
		{serving, ""},
		{"", size},
		{"", ""},
	}
	seen := make(map[string]struct{}, len(variants))
	keys := make([]string, 0, len(variants))
	for _, v := range variants {
		k := Key(brand, country, item, v[0], v[1])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Key builds a serving key of the form brand:country:item[:serving][:size].
func Key(brand, country, item, serving, size string) string {
	if country == "" {
		country = DefaultCountry
	}
	parts := []string{compact(brand), compact(country), compact(item)}
	if s := label(serving); s != "" {
		parts = append(parts, s)
	}
	if s := label(size); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ":")
}

// compact lowercases s and drops everything except letters and digits.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}

// label is compact but keeps hyphens ("10-piece").
func label(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}
