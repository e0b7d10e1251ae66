// Package meallog persists meals exactly once per content fingerprint.
package meallog

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/starford/macrolog/internal/checksum"
	"github.com/starford/macrolog/internal/models"
)

// Bucket is the timestamp granularity of the fingerprint. Submissions of the
// same content inside one bucket are duplicates.
const Bucket = 30 * time.Second

// KeyLength is the number of hex characters kept from the digest.
const KeyLength = 16

type fingerprintItem struct {
	Name string  `json:"name"`
	Kcal float64 `json:"kcal"`
	P    float64 `json:"p"`
	F    float64 `json:"f"`
	C    float64 `json:"c"`
}

type fingerprintDoc struct {
	UserID string            `json:"userId"`
	TS     int64             `json:"ts"`
	Items  []fingerprintItem `json:"items"`
}

// Fingerprint returns the idempotency key of a meal: the first KeyLength hex
// characters of the SHA-256 of a canonical JSON document holding the user,
// the eaten-at time floored to Bucket and the items sorted by name, then by
// their macros rounded to whole units.
func Fingerprint(userID string, eatenAt time.Time, items []models.MealItemRecord) string {
	bucket := Bucket.Milliseconds()
	doc := fingerprintDoc{
		UserID: userID,
		TS:     floorDiv(eatenAt.UnixMilli(), bucket) * bucket,
		Items:  make([]fingerprintItem, 0, len(items)),
	}
	for _, it := range items {
		doc.Items = append(doc.Items, fingerprintItem{
			Name: strings.ToLower(strings.TrimSpace(it.Name)),
			Kcal: round(it.Macros.Kcal),
			P:    round(it.Macros.ProteinG),
			F:    round(it.Macros.FatG),
			C:    round(it.Macros.CarbsG),
		})
	}
	sort.SliceStable(doc.Items, func(i, j int) bool {
		a, b := doc.Items[i], doc.Items[j]
		switch {
		case a.Name != b.Name:
			return a.Name < b.Name
		case a.Kcal != b.Kcal:
			return a.Kcal < b.Kcal
		case a.P != b.P:
			return a.P < b.P
		case a.F != b.F:
			return a.F < b.F
		}
		return a.C < b.C
	})

	// Marshal cannot fail: every field is a string, integer or finite float.
	payload, _ := json.Marshal(doc)
	return checksum.Short(payload, KeyLength)
}

// round rounds half up, so 2.5 becomes 3 and -2.5 becomes -2.
func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Floor(v + 0.5)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
