package extraction

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

func TestRuleBasedScenario(t *testing.T) {
	text := "Revenue was $1,234.56 and grew 12.5% to 1,000,000 shares outstanding"
	got := RuleBased(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 entities, got %d: %+v", len(got), got)
	}
	want := []struct{ value, typ, unit string }{
		{"1234.56", models.TypeMonetary, "$"},
		{"12.5", models.TypePercentage, "%"},
		{"1000000", models.TypeShares, "shares"},
	}
	for i, w := range want {
		if got[i].Value != w.value || got[i].Type != w.typ || got[i].Unit != w.unit {
			t.Errorf("entity %d = %+v, want %+v", i, got[i], w)
		}
		if got[i].Description == "" {
			t.Errorf("entity %d has empty description", i)
		}
		if got[i].Location.PageNum != 1 || got[i].Location.Coordinates != nil {
			t.Errorf("entity %d has unexpected location %+v", i, got[i].Location)
		}
	}
	if got[0].Confidence != 0.8 || got[1].Confidence != 0.8 || got[2].Confidence != 0.6 {
		t.Errorf("unexpected confidences %v %v %v", got[0].Confidence, got[1].Confidence, got[2].Confidence)
	}
}

func TestRuleBasedDeterministic(t *testing.T) {
	text := "Net income of €12,000 in FY2023 versus USD 9,500 and £300.\fMargin 4.2% in Q3 2024; 2,000 employees."
	first := RuleBased(text)
	for i := 0; i < 5; i++ {
		if again := RuleBased(text); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestRuleBasedCurrenciesAndPages(t *testing.T) {
	text := "Cash €12,000 and USD 9,500 and £300.\fMargin 4.2% for the quarter."
	got := RuleBased(text)
	byValue := map[string]models.Entity{}
	for _, e := range got {
		byValue[e.Value+"/"+e.Type] = e
	}
	checks := []struct {
		key, unit string
		page      int
	}{
		{"12000/monetary", "€", 1},
		{"9500/monetary", "USD", 1},
		{"300/monetary", "£", 1},
		{"4.2/percentage", "%", 2},
	}
	for _, c := range checks {
		e, ok := byValue[c.key]
		if !ok {
			t.Errorf("missing %s in %+v", c.key, got)
			continue
		}
		if e.Unit != c.unit || e.Location.PageNum != c.page {
			t.Errorf("%s: unit=%q page=%d, want %q %d", c.key, e.Unit, e.Location.PageNum, c.unit, c.page)
		}
	}
}

func TestRuleBasedPlainClassification(t *testing.T) {
	cases := []struct {
		text, value, typ string
	}{
		{"The company employed 5,400 people worldwide", "5400", models.TypeCount},
		{"Results for the fiscal year 2023 were strong", "2023", models.TypeDate},
		{"A total of 250 were issued to employees", "250", models.TypeShares},
		{"Balances as of 31 March were reconciled", "31", models.TypeDate},
	}
	for _, tc := range cases {
		got := RuleBased(tc.text)
		if len(got) != 1 || got[0].Value != tc.value || got[0].Type != tc.typ {
			t.Errorf("RuleBased(%q) = %+v, want %s/%s", tc.text, got, tc.value, tc.typ)
		}
	}
}

func TestRuleBasedSkipsPartialTokens(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"leverage ratio 1.5x", nil},
		{"backlog of 4.5bn", nil},
		{"a misprinted 1,2345 shares", nil},
		{"headcount reached 1,000.", []string{"1000"}},
		{"units sold: 300, up from 250", []string{"300", "250"}},
	}
	for _, tc := range cases {
		var got []string
		for _, e := range RuleBased(tc.text) {
			got = append(got, e.Value)
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("RuleBased(%q) values = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestRuleBasedPeriod(t *testing.T) {
	got := RuleBased("Revenue reached $5,000 in FY2023.")
	if len(got) == 0 || got[0].Period == nil || *got[0].Period != "FY2023" {
		t.Fatalf("expected FY2023 period, got %+v", got)
	}
	got = RuleBased("Revenue reached $5,000.")
	if len(got) != 1 || got[0].Period != nil {
		t.Fatalf("expected no period, got %+v", got)
	}
}

func TestDedupIdempotent(t *testing.T) {
	in := []models.Entity{
		{Value: "100", Type: models.TypeMonetary, Description: "first"},
		{Value: "100", Type: models.TypeCount, Description: "count"},
		{Value: "100", Type: models.TypeMonetary, Description: "second"},
		{Value: "5", Type: models.TypePercentage, Description: "pct"},
	}
	once := Dedup(in)
	twice := Dedup(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedup not idempotent:\n%+v\n%+v", once, twice)
	}
	if len(once) != 3 || once[0].Description != "first" {
		t.Fatalf("dedup should keep first occurrence: %+v", once)
	}
}

func TestWindowRespectsRuneBoundaries(t *testing.T) {
	text := "ééééééééééééééééééééééééééééé €5 ééééééééééééééééééééééééé"
	got := RuleBased(text)
	if len(got) != 1 {
		t.Fatalf("expected one entity, got %+v", got)
	}
	for _, r := range got[0].Description {
		if r == '�' {
			t.Fatalf("description contains a broken rune: %q", got[0].Description)
		}
	}
}
