package extraction

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

const (
	contextWindow      = 40
	ruleConfidence     = 0.8
	plainConfidence    = 0.6
	numberAlternatives = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`
)

var (
	monetaryPattern   = regexp.MustCompile(`(\$|€|£|USD|EUR|GBP)\s?(` + numberAlternatives + `)`)
	percentagePattern = regexp.MustCompile(`(` + numberAlternatives + `)%`)
	numberPattern     = regexp.MustCompile(`\b(` + numberAlternatives + `)\b`)
	periodPattern     = regexp.MustCompile(`(?i)\b(FY\s?'?\d{2,4}|Q[1-4]\s?(?:FY)?\s?'?\d{2,4}|(?:19|20)\d{2})\b`)

	shareKeywords = []string{"share", "issued", "outstanding"}
	dateKeywords  = []string{"year", "fy", "quarter", "q1", "q2", "q3", "q4", "as of"}
)

// span is a half-open byte range claimed by an earlier pass.
type span struct{ start, end int }

// RuleBased scans text with three fixed passes (monetary, percentage, plain number)
// and deduplicates the candidates. The result is deterministic for a given text.
func RuleBased(text string) []models.Entity {
	pages := newPageIndex(text)
	var candidates []models.Entity
	var claimed []span

	for _, m := range monetaryPattern.FindAllStringSubmatchIndex(text, -1) {
		unit := text[m[2]:m[3]]
		raw := text[m[4]:m[5]]
		candidates = append(candidates, ruleEntity(text, pages, m[0], m[1], raw, models.TypeMonetary, unit, ruleConfidence))
		claimed = append(claimed, span{m[0], m[1]})
	}

	for _, m := range percentagePattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		candidates = append(candidates, ruleEntity(text, pages, m[0], m[1], raw, models.TypePercentage, "%", ruleConfidence))
		claimed = append(claimed, span{m[0], m[1]})
	}

	for _, m := range numberPattern.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[1]) || glued(text, m[0], m[1]) {
			continue
		}
		raw := text[m[2]:m[3]]
		typ, unit := classifyPlain(strings.ToLower(window(text, m[0], m[1])))
		candidates = append(candidates, ruleEntity(text, pages, m[0], m[1], raw, typ, unit, plainConfidence))
	}

	return Dedup(candidates)
}

// Dedup keeps the first entity for every (value, type) pair. It is idempotent.
func Dedup(entities []models.Entity) []models.Entity {
	type key struct{ value, typ string }
	seen := make(map[key]bool, len(entities))
	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		k := key{e.Value, e.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func ruleEntity(text string, pages pageIndex, start, end int, raw, typ, unit string, confidence float64) models.Entity {
	ctx := window(text, start, end)
	return models.Entity{
		Value:       stripSeparators(raw),
		Type:        typ,
		Description: snippet(ctx),
		Unit:        unit,
		Period:      detectPeriod(ctx),
		Confidence:  confidence,
		Location:    models.Location{PageNum: pages.pageAt(start)},
	}
}

func classifyPlain(ctx string) (typ, unit string) {
	for _, kw := range shareKeywords {
		if strings.Contains(ctx, kw) {
			return models.TypeShares, "shares"
		}
	}
	for _, kw := range dateKeywords {
		if strings.Contains(ctx, kw) {
			return models.TypeDate, models.UnitUnknown
		}
	}
	return models.TypeCount, models.UnitUnknown
}

// glued reports whether [start,end) is only part of a larger token, such as the
// "1" of "1.5x" or either half of the malformed "1,2345".
func glued(text string, start, end int) bool {
	if end < len(text) {
		c := text[end]
		if isAlnum(c) {
			return true
		}
		if (c == '.' || c == ',') && end+1 < len(text) && isDigit(text[end+1]) {
			return true
		}
	}
	if start > 0 {
		c := text[start-1]
		if isAlnum(c) {
			return true
		}
		if (c == '.' || c == ',') && start > 1 && isDigit(text[start-2]) {
			return true
		}
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func overlaps(claimed []span, start, end int) bool {
	for _, s := range claimed {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

// window returns the text within contextWindow bytes of [start,end), widened to rune boundaries.
func window(text string, start, end int) string {
	lo := max(0, start-contextWindow)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := min(len(text), end+contextWindow)
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

// snippet collapses whitespace, page breaks included.
func snippet(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func detectPeriod(ctx string) *string {
	m := periodPattern.FindString(ctx)
	if m == "" {
		return nil
	}
	return &m
}

// pageIndex holds the byte offsets of page breaks.
type pageIndex []int

func newPageIndex(text string) pageIndex {
	var idx pageIndex
	for i := 0; i < len(text); i++ {
		if text[i] == models.PageBreak[0] {
			idx = append(idx, i)
		}
	}
	return idx
}

// pageAt returns the 1-based page containing byte offset pos.
func (p pageIndex) pageAt(pos int) int {
	return sort.SearchInts(p, pos) + 1
}
