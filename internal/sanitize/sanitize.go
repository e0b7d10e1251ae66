// Package sanitize turns raw food mentions into canonical items: brand
// detection, serving and size labels, and a normalized unit vocabulary.
package sanitize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/models"
)

var (
	ordersRe   = regexp.MustCompile(`(?i)\b(\d+)\s*(?:orders?|boxes?)\s*(?:of\s*)?(\d+)[- ]?(?:pieces?|pcs?)\b`)
	pieceRe    = regexp.MustCompile(`(?i)\b(\d{1,3})[- ]?(?:pieces?|pcs?)\b`)
	sizeRe     = regexp.MustCompile(`(?i)\b(small|medium|large|extra[- ]?large|xl|kids?)\b`)
	sizeNounRe = regexp.MustCompile(`(?i)\b(?:fries|drinks?|shakes?|sodas?|coffees?|beverages?)\b`)
	friesRe    = regexp.MustCompile(`(?i)\bfries\b`)
	danglingRe = regexp.MustCompile(`(?i)^(?:from|at)\s+|\s+(?:from|at)$`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

var unitSynonyms = map[string]string{
	"piece": "piece", "pieces": "piece", "pc": "piece", "pcs": "piece",
	"cup": "cup", "cups": "cup", "c": "cup",
	"g": "g", "gram": "g", "grams": "g", "gr": "g", "gm": "g",
	"kg": "kg", "kgs": "kg", "kilogram": "kg", "kilograms": "kg",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
	"tbsp": "tbsp", "tbs": "tbsp", "tbsps": "tbsp", "tablespoon": "tbsp", "tablespoons": "tbsp",
	"tsp": "tsp", "tsps": "tsp", "teaspoon": "tsp", "teaspoons": "tsp",
	"ml": "ml", "mls": "ml", "milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"l": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"slice": "slice", "slices": "slice",
	"serving": "serving", "servings": "serving",
	"scoop": "scoop", "scoops": "scoop",
}

// NormalizeUnit maps a unit token to its canonical form. Unknown tokens are
// returned lowercased and otherwise unchanged.
func NormalizeUnit(unit string) string {
	u := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), ".")
	if c, ok := unitSynonyms[u]; ok {
		return c
	}
	return u
}

// Sanitize converts mentions into canonical items. hints maps a lowercase
// substring of an item name to a brand and is consulted before the catalog.
// It never fails; unrecognized parts of an item keep their defaults.
func Sanitize(cat *catalog.Catalog, mentions []models.RawMention, hints map[string]string) []models.CanonicalItem {
	ordered := orderHints(hints)
	items := make([]models.CanonicalItem, 0, len(mentions))
	for _, m := range mentions {
		items = append(items, sanitizeOne(cat, m, ordered))
	}
	return items
}

type hint struct {
	substr string
	brand  string
}

func sanitizeOne(cat *catalog.Catalog, m models.RawMention, hints []hint) models.CanonicalItem {
	name := collapse(strings.ToLower(m.Name))
	original := name

	item := models.CanonicalItem{
		Quantity: 1,
		Unit:     NormalizeUnit(m.Unit),
	}
	if m.Quantity != nil {
		item.Quantity = *m.Quantity
	}

	name, item.Brand = detectBrand(cat, name, hints)

	if sm := ordersRe.FindStringSubmatchIndex(name); sm != nil {
		n, _ := strconv.Atoi(name[sm[2]:sm[3]])
		item.Quantity = float64(n)
		item.ServingLabel = name[sm[4]:sm[5]] + "-piece"
		name = name[:sm[0]] + " " + name[sm[1]:]
	} else if sm := pieceRe.FindStringSubmatchIndex(name); sm != nil {
		n, _ := strconv.Atoi(name[sm[2]:sm[3]])
		item.ServingLabel = strconv.Itoa(n) + "-piece"
		name = name[:sm[0]] + " " + name[sm[1]:]
		if item.Quantity == float64(n) && (item.Unit == "" || item.Unit == "piece") {
			item.Quantity = 1
			item.Unit = ""
		}
	}

	if sizeNounRe.MatchString(name) {
		if sm := sizeRe.FindStringSubmatchIndex(name); sm != nil {
			item.SizeLabel = normalizeSize(name[sm[2]:sm[3]])
			name = name[:sm[0]] + " " + name[sm[1]:]
			if friesRe.MatchString(name) {
				name = "fries"
			}
		}
	}

	name = collapse(danglingRe.ReplaceAllString(collapse(name), ""))
	if name == "" {
		name = original
	}
	item.Name = name
	item.IsBranded = item.Brand != ""
	return item
}

// detectBrand applies hints, then catalog cues, then catalog brand patterns.
// A brand-name match is removed from the item name; a cue is kept since it
// names the product.
func detectBrand(cat *catalog.Catalog, name string, hints []hint) (string, string) {
	for _, h := range hints {
		if strings.Contains(name, h.substr) {
			return name, h.brand
		}
	}
	if cat == nil {
		return name, ""
	}
	match, ok := cat.DetectBrand(name)
	if !ok {
		return name, ""
	}
	if !match.Cue {
		name = collapse(strings.Replace(name, strings.ToLower(match.Text), " ", 1))
	}
	return name, match.Brand
}

// orderHints lowercases hint keys and sorts them longest first so the most
// specific hint wins.
func orderHints(hints map[string]string) []hint {
	out := make([]hint, 0, len(hints))
	for k, brand := range hints {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && brand != "" {
			out = append(out, hint{substr: k, brand: brand})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].substr) != len(out[j].substr) {
			return len(out[i].substr) > len(out[j].substr)
		}
		return out[i].substr < out[j].substr
	})
	return out
}

func normalizeSize(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "extra"):
		return "xl"
	case s == "kid":
		return "kids"
	}
	return s
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
