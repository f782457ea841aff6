package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to DocumentStatus
		want     bool
	}{
		{StatusUploaded, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusUploaded, true},
		{StatusCompleted, StatusUploaded, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusProcessing, false},
		{StatusUploaded, StatusCompleted, false},
		{StatusProcessing, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEntityConcept(t *testing.T) {
	if (Entity{}).Concept() != "" {
		t.Fatal("untagged entity should have empty concept")
	}
	e := Entity{XbrlTag: &XbrlTag{Concept: "us-gaap:Assets"}}
	if e.Concept() != "us-gaap:Assets" {
		t.Fatalf("unexpected concept %q", e.Concept())
	}
}
