package extraction

import (
	"strings"
	"unicode/utf8"
)

const extractionInstructions = `Extract every numeric financial fact from the document text below.

Return ONLY a JSON object with this exact shape and no surrounding prose:
{"entities":[{"value":string,"type":string,"description":string,"unit":string,"period":string|null,"confidence":number}]}

Field rules:
- value: the number as written in the text, without currency symbols or percent signs.
- type: one of "monetary", "percentage", "ratio", "shares", "date", "count".
- description: a short snippet of the surrounding text that says what the number measures.
- unit: a currency code or symbol for monetary values, "%" for percentages, "shares" for share counts, otherwise "unknown".
- period: the fiscal period the fact refers to (for example "FY2023" or "Q3 2024"), or null when none is stated.
- confidence: a number between 0 and 1.

Document text:
`

// buildPrompt renders the extraction prompt over text truncated to maxChars characters.
func buildPrompt(text string, maxChars int) string {
	var b strings.Builder
	b.WriteString(extractionInstructions)
	b.WriteString("<<<\n")
	b.WriteString(truncate(text, maxChars))
	b.WriteString("\n>>>\n")
	return b.String()
}

// truncate cuts s after maxChars characters. A non-positive limit disables truncation.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
