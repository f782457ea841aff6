package textextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// fromPDF reads every page's content stream and collects its text-showing operators.
func fromPDF(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return "", fmt.Errorf("failed to validate PDF: %w", err)
	}

	pages := make([]string, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		r, err := pdfcpu.ExtractPageContent(ctx, i)
		if err != nil {
			return "", fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		if r == nil {
			pages = append(pages, "")
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		pages = append(pages, contentText(content))
	}
	return tidy(strings.Join(pages, "\f")), nil
}

// contentText interprets the text operators of a content stream: Tj, TJ, ' and "
// emit strings; T*, Td, TD and ET start a new line. Font encodings are not decoded.
func contentText(stream []byte) string {
	var (
		b       strings.Builder
		operand []string
		inArray bool
		array   strings.Builder
	)
	s := stream
	for len(s) > 0 {
		c := s[0]
		switch {
		case c == '(':
			str, rest := literalString(s[1:])
			s = rest
			if inArray {
				array.WriteString(str)
			} else {
				operand = append(operand, str)
			}
			continue
		case c == '<' && len(s) > 1 && s[1] == '<':
			s = s[2:]
			continue
		case c == '<':
			str, rest := hexString(s[1:])
			s = rest
			if inArray {
				array.WriteString(str)
			} else {
				operand = append(operand, str)
			}
			continue
		case c == '[':
			inArray = true
			array.Reset()
		case c == ']':
			inArray = false
			operand = append(operand, array.String())
		case c == '%':
			if i := bytes.IndexAny(s, "\r\n"); i >= 0 {
				s = s[i:]
				continue
			}
			return b.String()
		case isRegular(c):
			end := 1
			for end < len(s) && isRegular(s[end]) {
				end++
			}
			word := string(s[:end])
			s = s[end:]
			if inArray {
				// large negative kerning inside TJ reads as a word gap
				if strings.HasPrefix(word, "-") && len(word) > 3 {
					array.WriteByte(' ')
				}
				continue
			}
			switch word {
			case "Tj", "TJ":
				writeLast(&b, operand)
			case "'", `"`:
				b.WriteByte('\n')
				writeLast(&b, operand)
			case "T*", "Td", "TD", "ET":
				b.WriteByte('\n')
			}
			if !isNumber(word) {
				operand = operand[:0]
			}
			continue
		}
		s = s[1:]
	}
	return b.String()
}

func writeLast(b *strings.Builder, operand []string) {
	if len(operand) > 0 {
		b.WriteString(operand[len(operand)-1])
	}
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func isNumber(w string) bool {
	for i := 0; i < len(w); i++ {
		if !strings.ContainsRune("0123456789.+-", rune(w[i])) {
			return false
		}
	}
	return w != ""
}

// literalString decodes a (...) string whose opening paren has been consumed.
func literalString(s []byte) (string, []byte) {
	var b strings.Builder
	depth := 1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return b.String(), nil
			}
			i++
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r', 't', 'b', 'f':
				b.WriteByte(' ')
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					n, j := 0, 0
					for j < 3 && i+j < len(s) && s[i+j] >= '0' && s[i+j] <= '7' {
						n = n*8 + int(s[i+j]-'0')
						j++
					}
					i += j - 1
					b.WriteByte(byte(n))
				} else {
					b.WriteByte(e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return b.String(), s[i+1:]
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// hexString decodes a <...> string whose opening bracket has been consumed.
func hexString(s []byte) (string, []byte) {
	end := bytes.IndexByte(s, '>')
	if end < 0 {
		return "", nil
	}
	var digits []byte
	for _, c := range s[:end] {
		if ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F') {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		out[i] = unhex(digits[2*i])<<4 | unhex(digits[2*i+1])
	}
	return string(out), s[end+1:]
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
