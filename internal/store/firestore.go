package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/financialentityflow/internal/gcp"
	"github.com/Lllllllleong/financialentityflow/internal/models"
)

const resultsCollection = "results"

// FirestoreConfig names the project, database, collection and the bucket holding document text.
type FirestoreConfig struct {
	ProjectID  string
	DatabaseID string
	Collection string
	TextBucket string
}

// Firestore keeps documents and results in Firestore and document text in GCS.
type Firestore struct {
	client  *firestore.Client
	storage *storage.Client
	config  FirestoreConfig
}

// NewFirestore wraps existing clients; Close closes both.
func NewFirestore(client *firestore.Client, storageClient *storage.Client, config FirestoreConfig) *Firestore {
	if config.Collection == "" {
		config.Collection = "documents"
	}
	return &Firestore{client: client, storage: storageClient, config: config}
}

// OpenFirestore creates the Firestore and Storage clients for config. An empty
// DatabaseID selects the project's default database.
func OpenFirestore(ctx context.Context, config FirestoreConfig) (*Firestore, error) {
	if config.ProjectID == "" {
		return nil, fmt.Errorf("projectID must be provided to open the firestore store")
	}
	databaseID := config.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, config.ProjectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return NewFirestore(client, storageClient, config), nil
}

func (f *Firestore) docs() *firestore.CollectionRef {
	return f.client.Collection(f.config.Collection)
}

func (f *Firestore) CreateDocument(ctx context.Context, doc models.Document) (string, error) {
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	ref, _, err := f.docs().Add(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return ref.ID, nil
}

func (f *Firestore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	snap, err := f.docs().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return decodeDocument(snap)
}

func decodeDocument(snap *firestore.DocumentSnapshot) (models.Document, error) {
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return models.Document{}, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func (f *Firestore) FindByHash(ctx context.Context, fileHash string) (models.Document, bool, error) {
	snaps, err := f.docs().Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return models.Document{}, false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(snaps) == 0 {
		return models.Document{}, false, nil
	}
	doc, err := decodeDocument(snaps[0])
	return doc, err == nil, err
}

func (f *Firestore) GetDocumentText(ctx context.Context, id string) (string, error) {
	doc, err := f.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.TextGCSUri == "" {
		return "", fmt.Errorf("%w: %s has no extracted text", ErrDocumentNotFound, id)
	}
	bucket, object, err := gcp.ParseGCSUri(doc.TextGCSUri)
	if err != nil {
		return "", err
	}
	data, err := gcp.ReadObject(ctx, f.storage, bucket, object)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("%w: text object %s missing", ErrDocumentNotFound, doc.TextGCSUri)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveDocumentText writes <id>/text.txt once and records its uri on the document.
func (f *Firestore) SaveDocumentText(ctx context.Context, id, text string) (string, error) {
	if f.config.TextBucket == "" {
		return "", errors.New("no text bucket configured")
	}
	object := id + "/text.txt"
	if err := gcp.SaveToGCSAtomically(ctx, f.storage.Bucket(f.config.TextBucket), object, text); err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", f.config.TextBucket, object)
	updates := []firestore.Update{
		{Path: "textGcsUri", Value: uri},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := f.docs().Doc(id).Update(ctx, updates); err != nil {
		return "", fmt.Errorf("failed to record text uri: %w", err)
	}
	return uri, nil
}

// move runs a status change inside a transaction so concurrent triggers cannot interleave.
func (f *Firestore) move(ctx context.Context, id string, check func(from models.DocumentStatus) error, updates []firestore.Update) error {
	ref := f.docs().Doc(id)
	updates = append(updates[:len(updates):len(updates)], firestore.Update{Path: "updatedAt", Value: time.Now()})
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
			}
			return err
		}
		doc, err := decodeDocument(snap)
		if err != nil {
			return err
		}
		if err := check(doc.Status); err != nil {
			return err
		}
		return tx.Update(ref, updates)
	})
}

func (f *Firestore) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, errorDetails string) error {
	updates := []firestore.Update{{Path: "status", Value: to}}
	if errorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errorDetails})
	}
	return f.move(ctx, id, func(from models.DocumentStatus) error {
		return transition(id, from, to)
	}, updates)
}

func (f *Firestore) ClaimForProcessing(ctx context.Context, id, executionID string) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusProcessing},
		{Path: "errorDetails", Value: firestore.Delete},
		{Path: "workflowExecutionId", Value: executionID},
	}
	return f.move(ctx, id, func(from models.DocumentStatus) error {
		return transition(id, from, models.StatusProcessing)
	}, updates)
}

func (f *Firestore) Resubmit(ctx context.Context, id string) error {
	return f.move(ctx, id, func(from models.DocumentStatus) error {
		return transition(id, from, models.StatusUploaded)
	}, []firestore.Update{{Path: "status", Value: models.StatusUploaded}})
}

func (f *Firestore) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	iter := f.docs().Where("status", "==", models.StatusProcessing).Where("updatedAt", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	var failed []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return failed, fmt.Errorf("failed to list stale documents: %w", err)
		}
		id := snap.Ref.ID
		err = f.move(ctx, id, func(from models.DocumentStatus) error {
			if from != models.StatusProcessing {
				return fmt.Errorf("%w: %s is no longer processing", ErrInvalidTransition, id)
			}
			return nil
		}, []firestore.Update{
			{Path: "status", Value: models.StatusFailed},
			{Path: "errorDetails", Value: reason},
		})
		if errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			slog.Error("Failed to mark stale document as failed.", "documentId", id, "error", err)
			continue
		}
		failed = append(failed, id)
	}
	return failed, nil
}

func (f *Firestore) results(documentID string) *firestore.CollectionRef {
	return f.docs().Doc(documentID).Collection(resultsCollection)
}

func (f *Firestore) SaveResult(ctx context.Context, rec models.ProcessingRecord) (models.ProcessingRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	ref, _, err := f.results(rec.DocumentID).Add(ctx, rec)
	if err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("failed to save %s result: %w", rec.TaskType, err)
	}
	rec.ID = ref.ID
	return rec, nil
}

func (f *Firestore) GetResult(ctx context.Context, documentID, resultID string) (models.ProcessingRecord, error) {
	snap, err := f.results(documentID).Doc(resultID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ProcessingRecord{}, fmt.Errorf("%w: %s/%s", ErrResultNotFound, documentID, resultID)
		}
		return models.ProcessingRecord{}, fmt.Errorf("failed to get result: %w", err)
	}
	return decodeResult(snap)
}

func decodeResult(snap *firestore.DocumentSnapshot) (models.ProcessingRecord, error) {
	var rec models.ProcessingRecord
	if err := snap.DataTo(&rec); err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("failed to decode result %s: %w", snap.Ref.ID, err)
	}
	rec.ID = snap.Ref.ID
	return rec, nil
}

func (f *Firestore) GetResultsFor(ctx context.Context, documentID string) ([]models.ProcessingRecord, error) {
	iter := f.results(documentID).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	var out []models.ProcessingRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list results: %w", err)
		}
		rec, err := decodeResult(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func (f *Firestore) Close() error {
	return errors.Join(f.client.Close(), f.storage.Close())
}

var _ Store = (*Firestore)(nil)
