package textextract

import (
	"errors"
	"testing"
)

func TestFromBytesPlain(t *testing.T) {
	doc, err := FromBytes("report.txt", []byte("Revenue $5\r\nPage one\fPage two"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if doc.Text != "Revenue $5\nPage one\fPage two" || doc.Pages != 2 {
		t.Fatalf("got %q pages=%d", doc.Text, doc.Pages)
	}
}

func TestFromBytesHTML(t *testing.T) {
	src := `<html><head><title>ignored</title><style>p{color:red}</style></head>
<body>
<p>Revenue was   <b>$1,234</b> million.</p>
<script>var x = 99;</script>
<div style="page-break-after: always"></div>
<table><tr><td>Net income</td><td>$200</td></tr></table>
</body></html>`
	doc, err := FromBytes("filing.htm", []byte(src))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	want := "Revenue was $1,234 million.\fNet income$200"
	if doc.Text != want {
		t.Fatalf("got %q, want %q", doc.Text, want)
	}
	if doc.Pages != 2 {
		t.Fatalf("pages = %d", doc.Pages)
	}
}

func TestFromBytesSniffsContent(t *testing.T) {
	doc, err := FromBytes("upload", []byte("<!DOCTYPE html><p>Assets 10</p>"))
	if err != nil || doc.Text != "Assets 10" {
		t.Fatalf("got %q %v", doc.Text, err)
	}
	if _, err := FromBytes("deck.pptx", []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("want ErrUnsupportedFormat, got %v", err)
	}
}

func TestContentText(t *testing.T) {
	cases := []struct {
		name, stream, want string
	}{
		{"tj", "BT /F1 12 Tf 72 712 Td (Revenue $5) Tj ET", "\nRevenue $5\n"},
		{"tj array", "BT [(Net) -250 (income) 10 (s)] TJ ET", "Net incomes\n"},
		{"escapes", `BT (a\(b\)c \101) Tj ET`, "a(b)c A\n"},
		{"hex", "BT <48656C6C6F> Tj ET", "Hello\n"},
		{"quote operator", "BT (one) Tj (two) ' ET", "one\ntwo\n"},
		{"marked content", "/Span <</MCID 0>> BDC BT (x) Tj ET EMC", "x\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := contentText([]byte(tc.stream)); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
