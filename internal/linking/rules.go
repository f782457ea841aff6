package linking

import (
	"regexp"
	"strings"

	"github.com/Lllllllleong/financialentityflow/internal/models"
	"github.com/Lllllllleong/financialentityflow/internal/taxonomy"
)

// Provenance disclosed on every linked entity.
const (
	ExplanationFallback = "Rule-based mapping (fallback)"
	ExplanationReduced  = "Rule-based mapping (oracle unavailable)"
	ExplanationUnmapped = "No suitable US-GAAP mapping found"
	ExplanationOracle   = "Mapped by oracle"

	FallbackConfidence = 0.6
	ReducedConfidence  = 0.5
	OracleConfidence   = 0.9
)

// keywordRule maps any of its keywords (matched at a word start) to a concept name.
type keywordRule struct {
	concept string
	pattern *regexp.Regexp
}

func rule(concept string, keywords ...string) keywordRule {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return keywordRule{concept: concept, pattern: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`)}
}

// ruleTable is ordered: the first matching rule wins, so specific phrases precede generic ones.
type ruleTable []keywordRule

var fullRules = ruleTable{
	rule("EarningsPerShareDiluted", "diluted earnings per share", "diluted eps", "diluted net income per share"),
	rule("EarningsPerShareBasic", "earnings per share", "eps", "net income per share", "basic earnings"),
	rule("CommonStockDividendsPerShareDeclared", "dividend"),
	rule("NetIncomeLoss", "net income", "net loss", "net earnings", "profit attributable"),
	rule("GrossProfit", "gross profit"),
	rule("OperatingIncomeLoss", "operating income", "operating loss", "income from operations"),
	rule("CostOfRevenue", "cost of revenue", "cost of sales", "cost of goods sold"),
	rule("NetCashProvidedByUsedInOperatingActivities", "operating cash flow", "cash provided by operating", "cash from operations", "cash generated from operations"),
	rule("PaymentsToAcquirePropertyPlantAndEquipment", "capital expenditure", "capex", "purchases of property"),
	rule("ResearchAndDevelopmentExpense", "research and development", "r&d"),
	rule("SellingGeneralAndAdministrativeExpense", "selling, general", "sg&a", "general and administrative"),
	rule("OperatingExpenses", "operating expenses", "opex"),
	rule("EffectiveIncomeTaxRateContinuingOperations", "effective tax rate"),
	rule("IncomeTaxExpenseBenefit", "income tax", "tax expense", "provision for taxes"),
	rule("InterestExpense", "interest expense"),
	rule("DepreciationDepletionAndAmortization", "depreciation", "amortization"),
	rule("Revenues", "revenue", "net sales", "sales", "turnover"),
	rule("CashAndCashEquivalentsAtCarryingValue", "cash"),
	rule("LongTermDebt", "long-term debt", "long term debt", "borrowings"),
	rule("Liabilities", "liabilities"),
	rule("StockholdersEquity", "stockholders' equity", "shareholders' equity", "equity"),
	rule("Goodwill", "goodwill"),
	rule("InventoryNet", "inventor"),
	rule("AccountsReceivableNetCurrent", "receivable"),
	rule("Assets", "assets"),
	rule("WeightedAverageNumberOfSharesOutstandingBasic", "weighted average"),
	rule("CommonStockSharesOutstanding", "shares outstanding", "outstanding shares", "shares issued"),
}

// reducedRules is the single-pass table used when the oracle path is skipped entirely.
var reducedRules = ruleTable{
	rule("EarningsPerShareBasic", "earnings per share", "eps"),
	rule("NetIncomeLoss", "net income", "net loss"),
	rule("Revenues", "revenue", "sales"),
	rule("CashAndCashEquivalentsAtCarryingValue", "cash"),
	rule("Liabilities", "liabilities"),
	rule("StockholdersEquity", "equity"),
	rule("Assets", "assets"),
}

// match returns the concept name of the first rule matching the entity's description or value.
func (t ruleTable) match(e models.Entity) (string, bool) {
	haystack := strings.ToLower(e.Description + " " + e.Value)
	for _, r := range t {
		if r.pattern.MatchString(haystack) {
			return r.concept, true
		}
	}
	return "", false
}

// apply tags e from the table, or marks it unmapped.
func (t ruleTable) apply(e models.Entity, catalog *taxonomy.Catalog, confidence float64, explanation string) models.Entity {
	name, ok := t.match(e)
	if !ok {
		e.XbrlTag = nil
		e.MappingExplanation = ExplanationUnmapped
		return e
	}
	id := taxonomy.DefaultNamespace + ":" + name
	if concept, found := catalog.Resolve(name); found {
		id = concept.ID
	}
	e.XbrlTag = &models.XbrlTag{Concept: id, Taxonomy: taxonomy.Namespace(id), Confidence: confidence}
	e.MappingExplanation = explanation
	return e
}

// ApplyReduced tags every entity from the reduced keyword table.
func ApplyReduced(entities []models.Entity, concepts []models.TaxonomyConcept) []models.Entity {
	catalog := taxonomy.NewCatalog(concepts)
	out := make([]models.Entity, len(entities))
	for i, e := range entities {
		out[i] = reducedRules.apply(e, catalog, ReducedConfidence, ExplanationReduced)
	}
	return out
}
