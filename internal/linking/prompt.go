package linking

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

const linkingInstructions = `Map each financial entity below to the single best matching US-GAAP concept from the catalogue.

Return ONLY a JSON object with this exact shape and no surrounding prose:
{"mappings":[{"entityId":int,"xbrlTag":{"concept":string,"taxonomy":string,"confidence":number},"explanation":string}]}

Rules:
- Return one mapping for every entity, using the entityId shown.
- concept must be an id from the catalogue. Use null for xbrlTag when nothing fits.
- explanation is one short sentence.
`

// promptEntity is the per-entity line sent to the oracle.
type promptEntity struct {
	EntityID    int    `json:"entityId"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// buildPrompt renders one batch, numbering entities from zero, with up to maxConcepts catalogue entries.
func buildPrompt(batch []models.Entity, concepts []models.TaxonomyConcept, maxConcepts int) string {
	var b strings.Builder
	b.WriteString(linkingInstructions)

	b.WriteString("\nCatalogue:\n")
	if maxConcepts > 0 && len(concepts) > maxConcepts {
		concepts = concepts[:maxConcepts]
	}
	for _, c := range concepts {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", c.ID, c.Type, c.Period, c.Definition)
	}

	b.WriteString("\nEntities:\n")
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	for i, e := range batch {
		_ = enc.Encode(promptEntity{EntityID: i, Value: e.Value, Type: e.Type, Description: e.Description})
	}
	return b.String()
}
