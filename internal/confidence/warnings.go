package confidence

import (
	"fmt"

	"github.com/starford/macrolog/internal/models"
)

// Warning codes.
const (
	WarnLowConfidence  = "low_confidence"
	WarnMissingPortion = "missing_portion"
)

// Warning flags a single item for the user.
type Warning struct {
	Item    string `json:"item"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warnings flags items whose result confidence is low and items that
// resolved to no nutrition at all.
func (g *Gate) Warnings(items []models.ResolvedItem) []Warning {
	var out []Warning
	for _, it := range items {
		if it.Result.Confidence < g.cfg.LowConfidence {
			out = append(out, Warning{
				Item:    it.Name,
				Code:    WarnLowConfidence,
				Message: fmt.Sprintf("%s: nutrition confidence %.0f%%", it.Name, it.Result.Confidence*100),
			})
		}
		if it.Result.Macros.IsZero() {
			out = append(out, Warning{
				Item:    it.Name,
				Code:    WarnMissingPortion,
				Message: fmt.Sprintf("%s: no nutrition data found, please check the portion", it.Name),
			})
		}
	}
	return out
}
