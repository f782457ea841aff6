package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// DefaultConfidence is assigned to oracle entities that omit a confidence.
const DefaultConfidence = 0.9

var validate = validator.New()

var typeAliases = map[string]string{
	"percent":  models.TypePercentage,
	"currency": models.TypeMonetary,
	"money":    models.TypeMonetary,
	"number":   models.TypeCount,
	"share":    models.TypeShares,
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("value must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// oracleEntity is one element of the extraction response schema.
type oracleEntity struct {
	Value       flexString `json:"value"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Unit        string     `json:"unit"`
	Period      *string    `json:"period"`
	Confidence  *float64   `json:"confidence"`
}

// stripSeparators removes thousands separators and surrounding whitespace.
func stripSeparators(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
}

// normalizeValue strips separators and stray symbols and checks the result is a finite decimal.
func normalizeValue(raw string) (string, error) {
	v := stripSeparators(raw)
	v = strings.TrimLeft(v, "$€£ ")
	v = strings.TrimRight(v, "% ")
	if _, err := decimal.NewFromString(v); err != nil {
		return "", fmt.Errorf("value %q is not a decimal: %w", raw, err)
	}
	return v, nil
}

// normalizeType lower-cases the type and folds common aliases.
func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// normalize converts an oracle entity into a validated Entity.
func normalize(oe oracleEntity, pages pageIndex, text string) (models.Entity, error) {
	value, err := normalizeValue(string(oe.Value))
	if err != nil {
		return models.Entity{}, err
	}
	confidence := DefaultConfidence
	if oe.Confidence != nil {
		confidence = min(max(*oe.Confidence, 0), 1)
	}
	unit := strings.TrimSpace(oe.Unit)
	if unit == "" {
		unit = models.UnitUnknown
	}
	var period *string
	if oe.Period != nil && strings.TrimSpace(*oe.Period) != "" {
		p := strings.TrimSpace(*oe.Period)
		period = &p
	}

	e := models.Entity{
		Value:       value,
		Type:        normalizeType(oe.Type),
		Description: strings.TrimSpace(oe.Description),
		Unit:        unit,
		Period:      period,
		Confidence:  confidence,
		Location:    models.Location{PageNum: locate(text, pages, string(oe.Value), value)},
	}
	if err := validate.Struct(e); err != nil {
		return models.Entity{}, fmt.Errorf("entity %q: %w", value, err)
	}
	return e, nil
}

// locate returns the page of the first literal occurrence of the value, or 1.
func locate(text string, pages pageIndex, literals ...string) int {
	for _, lit := range literals {
		lit = strings.TrimSpace(lit)
		if lit == "" {
			continue
		}
		if i := strings.Index(text, lit); i >= 0 {
			return pages.pageAt(i)
		}
	}
	return 1
}
