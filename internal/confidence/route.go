package confidence

import (
	"sort"
	"strings"

	"github.com/starford/macrolog/internal/models"
)

// Missing fields reported for clarification.
const (
	FieldQuantity      = "quantity"
	FieldUnit          = "unit"
	FieldBrandOrMacros = "brand_or_macros"
)

const (
	maxQuestions         = 2
	maxFieldsPerFoodType = 2
)

// Question is one clarification follow-up.
type Question struct {
	Item     string `json:"item"`
	Field    string `json:"field"`
	Text     string `json:"text"`
	Priority int    `json:"-"`
}

// Decision is the routing outcome for a scored meal.
type Decision struct {
	Route     Route      `json:"route"`
	Missing   []string   `json:"missing,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

type foodType struct {
	name      string
	keywords  []string
	priority  int
	templates map[string]string
}

// foodTypes is ordered by priority, highest first. The last entry has no
// keywords and matches everything.
var foodTypes = []foodType{
	{
		name:     "protein_shake",
		keywords: []string{"protein", "whey", "shake", "smoothie", "powder"},
		priority: 10,
		templates: map[string]string{
			FieldBrandOrMacros: "Which protein powder? Brand + flavor, or the macros per scoop on its label.",
			FieldQuantity:      "How many scoops?",
			FieldUnit:          "How much milk or water? (cup/oz/ml)",
		},
	},
	{
		name:     "sandwich",
		keywords: []string{"sandwich", "bread", "toast", "bagel", "wrap", "tortilla"},
		priority: 8,
		templates: map[string]string{
			FieldBrandOrMacros: "What type of bread, and what toppings or fillings?",
			FieldQuantity:      "How many slices or pieces?",
			FieldUnit:          "Slices, pieces, or a whole sandwich?",
		},
	},
	{
		name:     "bowl",
		keywords: []string{"bowl", "salad", "stir-fry", "pasta", "rice"},
		priority: 7,
		templates: map[string]string{
			FieldBrandOrMacros: "What base and what protein?",
			FieldQuantity:      "How much base? (cups/oz)",
			FieldUnit:          "In cups, ounces or grams?",
		},
	},
	{
		name:     "generic",
		priority: 1,
		templates: map[string]string{
			FieldBrandOrMacros: "What brand, or what are the macros on the label?",
			FieldQuantity:      "How much?",
			FieldUnit:          "What unit? (oz/cup/grams/etc)",
		},
	},
}

func detectFoodType(name string) foodType {
	n := strings.ToLower(name)
	for _, ft := range foodTypes {
		for _, kw := range ft.keywords {
			if strings.Contains(n, kw) {
				return ft
			}
		}
	}
	return foodTypes[len(foodTypes)-1]
}

// MissingFields lists the fields a user could supply to complete an item.
func MissingFields(it models.ResolvedItem) []string {
	var out []string
	if it.Quantity <= 0 {
		out = append(out, FieldQuantity)
	}
	if !hasUnit(it.CanonicalItem) {
		out = append(out, FieldUnit)
	}
	if !it.HasMacros() && it.Brand == "" {
		out = append(out, FieldBrandOrMacros)
	}
	return out
}

// Decide routes a scored meal. Passing gates autosave; otherwise identifiable
// missing fields produce clarification questions and anything else goes to
// manual verification.
func (g *Gate) Decide(items []models.ResolvedItem, score Score) Decision {
	if score.Gates.Pass() {
		return Decision{Route: RouteAutosave}
	}
	questions, missing := Clarify(items)
	if len(questions) == 0 {
		return Decision{Route: RouteVerify}
	}
	return Decision{Route: RouteClarification, Missing: missing, Questions: questions}
}

// Clarify builds at most two follow-up questions, highest food-type priority
// first, asking about at most two fields per food type. It also returns the
// distinct missing fields across all items.
func Clarify(items []models.ResolvedItem) ([]Question, []string) {
	type key struct{ foodType, field string }
	var (
		candidates []Question
		missing    []string
		seenField  = make(map[string]bool)
		seenAsked  = make(map[key]bool)
		perType    = make(map[string]int)
	)
	for _, it := range items {
		ft := detectFoodType(it.Name)
		for _, field := range MissingFields(it) {
			if !seenField[field] {
				seenField[field] = true
				missing = append(missing, field)
			}
			k := key{ft.name, field}
			if seenAsked[k] || perType[ft.name] >= maxFieldsPerFoodType {
				continue
			}
			seenAsked[k] = true
			perType[ft.name]++
			candidates = append(candidates, Question{
				Item:     it.Name,
				Field:    field,
				Text:     ft.templates[field],
				Priority: ft.priority,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	if len(candidates) > maxQuestions {
		candidates = candidates[:maxQuestions]
	}
	return candidates, missing
}
