package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// GCSGold reads gold samples from gs://<bucket>/<documentId>.json.
type GCSGold struct {
	client *storage.Client
	bucket string
}

func NewGCSGold(client *storage.Client, bucket string) *GCSGold {
	return &GCSGold{client: client, bucket: bucket}
}

func (g *GCSGold) GoldStandard(ctx context.Context, documentID string) ([]models.Entity, error) {
	data, err := gcp.ReadObject(ctx, g.client, g.bucket, documentID+".json")
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrGoldNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}
	return decodeGold(data)
}

// DirGold reads gold samples from <dir>/<documentId>.json.
type DirGold struct {
	Dir string
}

func (g DirGold) GoldStandard(_ context.Context, documentID string) ([]models.Entity, error) {
	data, err := os.ReadFile(filepath.Join(g.Dir, filepath.Base(documentID)+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrGoldNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}
	return decodeGold(data)
}

// LoadGoldFile decodes a single gold sample file.
func LoadGoldFile(path string) ([]models.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeGold(data)
}
