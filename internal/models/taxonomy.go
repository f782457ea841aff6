package models

// Concept value types and period types.
const (
	ConceptMonetary = "monetary"
	ConceptPerShare = "perShare"
	ConceptShares   = "shares"
	ConceptPercent  = "percent"

	PeriodInstant  = "instant"
	PeriodDuration = "duration"
)

// TaxonomyConcept is one entry of the closed concept dictionary.
type TaxonomyConcept struct {
	Name       string `json:"name" yaml:"name"`
	ID         string `json:"id" yaml:"id"`
	Definition string `json:"definition,omitempty" yaml:"definition"`
	Type       string `json:"type" yaml:"type"`
	Period     string `json:"period" yaml:"period"`
}
