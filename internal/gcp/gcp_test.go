package gcp

import (
	"testing"
	"time"
)

func TestParseGCSUri(t *testing.T) {
	bucket, object, err := ParseGCSUri("gs://gold/doc-1/Extraction.json")
	if err != nil {
		t.Fatalf("ParseGCSUri: %v", err)
	}
	if bucket != "gold" || object != "doc-1/Extraction.json" {
		t.Fatalf("got %q %q", bucket, object)
	}
	for _, bad := range []string{"", "http://x/y", "gs://bucket", "gs:///obj"} {
		if _, _, err := ParseGCSUri(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FEF_INT", "7")
	t.Setenv("FEF_BAD_INT", "seven")
	t.Setenv("FEF_BOOL", "false")
	t.Setenv("FEF_DUR", "250ms")

	if got := GetEnvInt("FEF_INT", 1); got != 7 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvInt("FEF_BAD_INT", 3); got != 3 {
		t.Errorf("malformed int should fall back, got %d", got)
	}
	if got := GetEnvBool("FEF_BOOL", true); got {
		t.Errorf("GetEnvBool = %v", got)
	}
	if got := GetEnvDuration("FEF_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration = %v", got)
	}
	if got := GetEnv("FEF_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q", got)
	}
}
