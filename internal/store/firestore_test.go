package store

import (
	"context"
	"testing"
)

func TestOpenFirestoreRequiresProject(t *testing.T) {
	st, err := OpenFirestore(context.Background(), FirestoreConfig{Collection: "documents", TextBucket: "texts"})
	if err == nil || st != nil {
		t.Fatalf("expected an error without a project, got %v %v", st, err)
	}
}

func TestNewFirestoreDefaultsCollection(t *testing.T) {
	f := NewFirestore(nil, nil, FirestoreConfig{ProjectID: "p"})
	if f.config.Collection != "documents" {
		t.Errorf("collection = %q, want documents", f.config.Collection)
	}
}
