package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// SQLite is a single-file store for local runs and tests. Document text is kept inline.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps claim transactions serial
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	file_hash TEXT,
	original_filename TEXT,
	status TEXT NOT NULL,
	error_details TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	text_uri TEXT NOT NULL DEFAULT '',
	text_body TEXT,
	workflow_execution_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(file_hash);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, updated_at);

CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	model_name TEXT NOT NULL,
	task_type TEXT NOT NULL,
	predictions TEXT NOT NULL,
	metrics TEXT NOT NULL,
	processing_time_ms INTEGER NOT NULL,
	source_result_id TEXT NOT NULL DEFAULT '',
	detailed_results TEXT,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_results_document ON results(document_id, created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLite) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}

func (s *SQLite) CreateDocument(ctx context.Context, doc models.Document) (string, error) {
	id := doc.ID
	if id == "" {
		id = s.newID()
	}
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id, file_hash, original_filename, status, error_details, page_count, text_uri, workflow_execution_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, doc.FileHash, doc.OriginalFilename, string(doc.Status), doc.ErrorDetails, doc.PageCount, doc.TextGCSUri, doc.WorkflowExecutionID, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

const documentColumns = `id, file_hash, original_filename, status, error_details, page_count, text_uri, workflow_execution_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (models.Document, error) {
	var (
		doc                  models.Document
		fileHash, filename   sql.NullString
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&doc.ID, &fileHash, &filename, &status, &doc.ErrorDetails, &doc.PageCount,
		&doc.TextGCSUri, &doc.WorkflowExecutionID, &createdAt, &updatedAt)
	if err != nil {
		return models.Document{}, err
	}
	doc.FileHash = fileHash.String
	doc.OriginalFilename = filename.String
	doc.Status = models.DocumentStatus(status)
	doc.CreatedAt = time.Unix(0, createdAt)
	doc.UpdatedAt = time.Unix(0, updatedAt)
	return doc, nil
}

func (s *SQLite) GetDocument(ctx context.Context, id string) (models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLite) FindByHash(ctx context.Context, fileHash string) (models.Document, bool, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_hash = ? LIMIT 1`, fileHash))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, false, nil
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	return doc, true, nil
}

func (s *SQLite) GetDocumentText(ctx context.Context, id string) (string, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT text_body FROM documents WHERE id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", id, err)
	}
	if !text.Valid {
		return "", fmt.Errorf("%w: %s has no extracted text", ErrDocumentNotFound, id)
	}
	return text.String, nil
}

func (s *SQLite) SaveDocumentText(ctx context.Context, id, text string) (string, error) {
	uri := "sqlite://documents/" + id
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET text_body = ?, text_uri = ?, updated_at = ? WHERE id = ?`,
		text, uri, time.Now().UnixNano(), id)
	if err != nil {
		return "", fmt.Errorf("failed to save text of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return uri, nil
}

// move applies a guarded status change: the UPDATE only matches while the status is still from.
func (s *SQLite) move(ctx context.Context, id string, to models.DocumentStatus, set string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from string
	err = tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return err
	}
	if err := transition(id, models.DocumentStatus(from), to); err != nil {
		return err
	}

	query := `UPDATE documents SET status = ?, updated_at = ?` + set + ` WHERE id = ? AND status = ?`
	params := append([]any{string(to), time.Now().UnixNano()}, args...)
	params = append(params, id, from)
	res, err := tx.ExecContext(ctx, query, params...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, id)
	}
	return tx.Commit()
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, to models.DocumentStatus, errorDetails string) error {
	if errorDetails != "" {
		return s.move(ctx, id, to, `, error_details = ?`, errorDetails)
	}
	return s.move(ctx, id, to, "")
}

func (s *SQLite) ClaimForProcessing(ctx context.Context, id, executionID string) error {
	return s.move(ctx, id, models.StatusProcessing, `, error_details = '', workflow_execution_id = ?`, executionID)
}

func (s *SQLite) Resubmit(ctx context.Context, id string) error {
	return s.move(ctx, id, models.StatusUploaded, "")
}

func (s *SQLite) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		string(models.StatusProcessing), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale documents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var failed []string
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_details = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(models.StatusFailed), reason, time.Now().UnixNano(), id, string(models.StatusProcessing))
		if err != nil {
			return failed, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

func (s *SQLite) SaveResult(ctx context.Context, rec models.ProcessingRecord) (models.ProcessingRecord, error) {
	rec.ID = s.newID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	predictions, err := json.Marshal(nonNil(rec.Predictions))
	if err != nil {
		return models.ProcessingRecord{}, err
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return models.ProcessingRecord{}, err
	}
	var detailed []byte
	if rec.DetailedResults != nil {
		if detailed, err = json.Marshal(rec.DetailedResults); err != nil {
			return models.ProcessingRecord{}, err
		}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO results (id, document_id, model_name, task_type, predictions, metrics, processing_time_ms, source_result_id, detailed_results, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, rec.ModelName, string(rec.TaskType), string(predictions), string(metrics),
		rec.ProcessingTimeMs, rec.SourceResultID, nullableJSON(detailed), rec.CreatedAt.UnixNano())
	if err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("failed to save %s result: %w", rec.TaskType, err)
	}
	return rec, nil
}

func nonNil(entities []models.Entity) []models.Entity {
	if entities == nil {
		return []models.Entity{}
	}
	return entities
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

const resultColumns = `id, document_id, model_name, task_type, predictions, metrics, processing_time_ms, source_result_id, detailed_results, created_at`

func scanResult(row interface{ Scan(...any) error }) (models.ProcessingRecord, error) {
	var (
		rec                  models.ProcessingRecord
		taskType             string
		predictions, metrics string
		detailed             sql.NullString
		createdAt            int64
	)
	if err := row.Scan(&rec.ID, &rec.DocumentID, &rec.ModelName, &taskType, &predictions, &metrics,
		&rec.ProcessingTimeMs, &rec.SourceResultID, &detailed, &createdAt); err != nil {
		return models.ProcessingRecord{}, err
	}
	rec.TaskType = models.TaskType(taskType)
	rec.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(predictions), &rec.Predictions); err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("decode predictions of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("decode metrics of %s: %w", rec.ID, err)
	}
	if detailed.Valid {
		if err := json.Unmarshal([]byte(detailed.String), &rec.DetailedResults); err != nil {
			return models.ProcessingRecord{}, fmt.Errorf("decode detailed results of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func (s *SQLite) GetResult(ctx context.Context, documentID, resultID string) (models.ProcessingRecord, error) {
	rec, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE document_id = ? AND id = ?`, documentID, resultID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProcessingRecord{}, fmt.Errorf("%w: %s/%s", ErrResultNotFound, documentID, resultID)
	}
	if err != nil {
		return models.ProcessingRecord{}, fmt.Errorf("failed to get result: %w", err)
	}
	return rec, nil
}

func (s *SQLite) GetResultsFor(ctx context.Context, documentID string) ([]models.ProcessingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()
	var out []models.ProcessingRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ Store = (*SQLite)(nil)
