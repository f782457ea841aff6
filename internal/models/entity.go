package models

// PageBreak separates pages in extracted document text.
const PageBreak = "\f"

// Entity types produced by extraction.
const (
	TypeMonetary   = "monetary"
	TypePercentage = "percentage"
	TypeRatio      = "ratio"
	TypeShares     = "shares"
	TypeDate       = "date"
	TypeCount      = "count"
)

// EntityTypes lists every valid entity type.
var EntityTypes = []string{TypeMonetary, TypePercentage, TypeRatio, TypeShares, TypeDate, TypeCount}

// UnitUnknown is used when no unit can be determined.
const UnitUnknown = "unknown"

// Coordinates are reserved for positional extraction and are never populated today.
type Coordinates struct {
	X      float64 `json:"x" firestore:"x"`
	Y      float64 `json:"y" firestore:"y"`
	Width  float64 `json:"width" firestore:"width"`
	Height float64 `json:"height" firestore:"height"`
}

// Location points at where an entity was found.
type Location struct {
	PageNum     int          `json:"pageNum" firestore:"pageNum"`
	Coordinates *Coordinates `json:"coordinates" firestore:"coordinates"`
}

// XbrlTag links an entity to a taxonomy concept.
type XbrlTag struct {
	Concept    string  `json:"concept" firestore:"concept"`
	Taxonomy   string  `json:"taxonomy" firestore:"taxonomy"`
	Confidence float64 `json:"confidence" firestore:"confidence"`
}

// Entity is a single extracted numeric fact.
// An entity carries at most one tag; a nil tag means no suitable concept was found.
type Entity struct {
	Value              string   `json:"value" firestore:"value" validate:"required,numeric"`
	Type               string   `json:"type" firestore:"type" validate:"oneof=monetary percentage ratio shares date count"`
	Description        string   `json:"description" firestore:"description" validate:"required"`
	Unit               string   `json:"unit" firestore:"unit" validate:"required"`
	Period             *string  `json:"period" firestore:"period"`
	Confidence         float64  `json:"confidence" firestore:"confidence" validate:"gte=0,lte=1"`
	Location           Location `json:"location" firestore:"location"`
	XbrlTag            *XbrlTag `json:"xbrlTag,omitempty" firestore:"xbrlTag,omitempty"`
	MappingExplanation string   `json:"mappingExplanation,omitempty" firestore:"mappingExplanation,omitempty"`
}

// Concept returns the linked concept id, or "" when the entity is untagged.
func (e Entity) Concept() string {
	if e.XbrlTag == nil {
		return ""
	}
	return e.XbrlTag.Concept
}
