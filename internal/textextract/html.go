package textextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

var skipped = map[atom.Atom]bool{atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Li: true, atom.Table: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Hr: true,
}

// fromHTML streams the document text, honouring CSS page-break hints used by filings.
func fromHTML(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("parse html: %w", err)
			}
			return tidy(b.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if pageBreak(tok, "page-break-before", "break-before") {
				b.WriteString(models.PageBreak)
			}
			if blocks[tok.DataAtom] {
				b.WriteByte('\n')
			}
			if pageBreak(tok, "page-break-after", "break-after") {
				b.WriteString(models.PageBreak)
			}
		case html.EndTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blocks[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.Write(z.Text())
		}
	}
}

func pageBreak(tok html.Token, props ...string) bool {
	for _, a := range tok.Attr {
		if a.Key != "style" {
			continue
		}
		style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
		for _, p := range props {
			if strings.Contains(style, p+":always") || strings.Contains(style, p+":page") {
				return true
			}
		}
	}
	return false
}

// tidy collapses runs of spaces and blank lines while keeping page breaks.
func tidy(s string) string {
	pages := strings.Split(s, models.PageBreak)
	for i, page := range pages {
		var lines []string
		for _, line := range strings.Split(page, "\n") {
			if line = strings.Join(strings.Fields(line), " "); line != "" {
				lines = append(lines, line)
			}
		}
		pages[i] = strings.Join(lines, "\n")
	}
	return strings.Join(pages, models.PageBreak)
}
