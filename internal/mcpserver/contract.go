package mcpserver

// ConfirmItemsContract describes the items_json argument of confirm_meal.
const ConfirmItemsContract = `# Confirmed Items Format

confirm_meal takes a JSON array of items. Each item:

` + "```" + `json
{
  "name": "greek yogurt",       // REQUIRED
  "quantity": 1,                // OPTIONAL, defaults to 1
  "unit": "cup",                // OPTIONAL
  "brand": "Fage",              // OPTIONAL
  "macros": {                   // OPTIONAL, totals for the whole quantity
    "kcal": 146,
    "protein_g": 20,
    "carbs_g": 7.8,
    "fat_g": 3.8,
    "fiber_g": 0
  }
}
` + "```" + `

## Rules

1. Items with **macros** are logged exactly as given.
2. Items without macros are resolved again (brand catalog, generic foods,
   estimation service) before logging.
3. Macros must not be negative.
4. Logging the same items for the same user within the same 30 second
   window is a no-op that returns the existing meal.
`
