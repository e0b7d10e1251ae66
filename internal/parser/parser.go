// Package parser implements the rule-based meal text parser used when the
// extraction model is unavailable or returns unusable output.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/macrolog/internal/models"
)

var (
	splitRe    = regexp.MustCompile(`(?i)[.,;]\s+|\s+(?:and|with|plus)\s+`)
	leadingRe  = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?|\d+/\d+|a|an|one|two|three|four|five|half(?: a| an)?)\s+(.+)$`)
	ofRe       = regexp.MustCompile(`(?i)^of\s+`)
	fillerRe   = regexp.MustCompile(`(?i)^(?:i\s+(?:had|ate|drank)|had|ate|for\s+\w+\s+i\s+had)\s+`)
	trailingRe = regexp.MustCompile(`[.!?,;]+$`)
)

var wordQuantities = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"half": 0.5, "half a": 0.5, "half an": 0.5,
}

// unitWords are the tokens recognized as a unit directly after a quantity.
var unitWords = map[string]struct{}{
	"g": {}, "gram": {}, "grams": {}, "kg": {}, "oz": {}, "ounce": {}, "ounces": {},
	"lb": {}, "lbs": {}, "pound": {}, "pounds": {}, "cup": {}, "cups": {},
	"tbsp": {}, "tablespoon": {}, "tablespoons": {}, "tsp": {}, "teaspoon": {}, "teaspoons": {},
	"ml": {}, "l": {}, "liter": {}, "liters": {}, "slice": {}, "slices": {},
	"piece": {}, "pieces": {}, "pc": {}, "pcs": {}, "serving": {}, "servings": {},
	"scoop": {}, "scoops": {}, "bowl": {}, "bowls": {}, "glass": {}, "glasses": {},
	"can": {}, "cans": {}, "bottle": {}, "bottles": {}, "handful": {}, "handfuls": {},
}

// NaiveSplit splits text into food phrases on sentence punctuation and the
// connectives "and", "with" and "plus", then parses each phrase.
func NaiveSplit(text string) []models.RawMention {
	var out []models.RawMention
	for _, part := range splitRe.Split(strings.TrimSpace(text), -1) {
		part = strings.TrimSpace(trailingRe.ReplaceAllString(strings.TrimSpace(part), ""))
		part = fillerRe.ReplaceAllString(part, "")
		if part == "" {
			continue
		}
		out = append(out, ParsePhrase(part))
	}
	return out
}

// ParsePhrase reads an optional leading quantity and unit from a phrase such
// as "2 cups rice" or "half an avocado".
func ParsePhrase(phrase string) models.RawMention {
	phrase = strings.TrimSpace(phrase)
	m := leadingRe.FindStringSubmatch(phrase)
	if m == nil {
		return models.RawMention{Name: phrase}
	}
	q, ok := parseQuantity(m[1])
	if !ok {
		return models.RawMention{Name: phrase}
	}
	rest := strings.TrimSpace(m[2])
	mention := models.RawMention{Name: rest, Quantity: &q}

	fields := strings.Fields(rest)
	if len(fields) > 1 {
		if _, isUnit := unitWords[strings.ToLower(fields[0])]; isUnit {
			mention.Unit = strings.ToLower(fields[0])
			mention.Name = ofRe.ReplaceAllString(strings.Join(fields[1:], " "), "")
		}
	}
	return mention
}

func parseQuantity(s string) (float64, bool) {
	s = strings.ToLower(s)
	if v, ok := wordQuantities[s]; ok {
		return v, true
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
