package linking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/oracle"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("entityId %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// mapping is one element of the linking response schema.
type mapping struct {
	EntityID *flexInt `json:"entityId"`
	XbrlTag  *struct {
		Concept    *string  `json:"concept"`
		Taxonomy   string   `json:"taxonomy"`
		Confidence *float64 `json:"confidence"`
	} `json:"xbrlTag"`
	Explanation string `json:"explanation"`
}

// assignment is a resolved oracle mapping for one global entity index.
type assignment struct {
	tag         models.XbrlTag
	explanation string
}

// parseMappings decodes a linking response. The returned count is the length of the
// mappings array as sent, including elements that fail to decode.
func parseMappings(text string) ([]mapping, int, error) {
	body := oracle.StripCodeFence(text)
	var payload struct {
		Mappings *[]json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", oracle.ErrMalformedResponse, err)
	}
	if payload.Mappings == nil {
		return nil, 0, fmt.Errorf("%w: missing mappings array", oracle.ErrMalformedResponse)
	}
	out := make([]mapping, 0, len(*payload.Mappings))
	for _, item := range *payload.Mappings {
		var m mapping
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, len(*payload.Mappings), nil
}

// sufficient reports whether a batch answer covers at least 70% of the batch.
func sufficient(returned, batchSize int) bool {
	return returned*10 >= batchSize*7
}

// resolve re-indexes batch-local ids to global indices. Out-of-range ids and
// mappings whose concept is missing from the catalogue are dropped; for duplicate
// ids the first one wins.
func resolve(mappings []mapping, start, size int, catalog *taxonomy.Catalog) map[int]assignment {
	out := make(map[int]assignment, len(mappings))
	for _, m := range mappings {
		if m.EntityID == nil || m.XbrlTag == nil || m.XbrlTag.Concept == nil {
			continue
		}
		local := int(*m.EntityID)
		if local < 0 || local >= size {
			continue
		}
		global := start + local
		if _, dup := out[global]; dup {
			continue
		}
		concept := strings.TrimSpace(*m.XbrlTag.Concept)
		if concept == "" {
			continue
		}
		known, ok := catalog.Resolve(concept)
		if !ok {
			continue
		}
		concept = known.ID
		ns := taxonomy.Namespace(concept)
		confidence := OracleConfidence
		if m.XbrlTag.Confidence != nil {
			confidence = min(max(*m.XbrlTag.Confidence, 0), 1)
		}
		explanation := strings.TrimSpace(m.Explanation)
		if explanation == "" {
			explanation = ExplanationOracle
		}
		out[global] = assignment{
			tag:         models.XbrlTag{Concept: concept, Taxonomy: ns, Confidence: confidence},
			explanation: explanation,
		}
	}
	return out
}
