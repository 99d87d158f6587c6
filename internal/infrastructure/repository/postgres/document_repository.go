package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, filename, mime_type, storage_path, ocr_status, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.OwnerID, doc.Filename, doc.MimeType, doc.StoragePath,
		string(doc.OCRStatus), string(doc.Status), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, filename, mime_type, storage_path, document_type_id, document_type_code, confidence,
	ocr_status, ocr_text, indexed, status, error_message, created_at, updated_at, deleted_at
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectOneRow(result, "update document status", id)
}

func (r *DocumentRepository) SaveOCRResult(ctx context.Context, id string, text domain.TextResult) error {
	pagesJSON, err := json.Marshal(nonNilStrings(text.Pages))
	if err != nil {
		return fmt.Errorf("marshal ocr pages: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ocr_status = $2, ocr_text = $3, ocr_pages = $4, error_message = '', updated_at = $5
WHERE id = $1
`, id, string(domain.OCRStatusDone), text.Text, pagesJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	return expectOneRow(result, "save ocr result", id)
}

func (r *DocumentRepository) MarkOCRFailed(ctx context.Context, id string, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ocr_status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.OCRStatusFailed), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark ocr failed: %w", err)
	}
	return expectOneRow(result, "mark ocr failed", id)
}

func (r *DocumentRepository) SaveClassification(ctx context.Context, id string, assignment domain.TypeAssignment, status domain.DocumentStatus) error {
	candidatesJSON, err := json.Marshal(assignment.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET document_type_id = $2, document_type_code = $3, confidence = $4, candidates = $5, status = $6, updated_at = $7
WHERE id = $1
`, id, assignment.DocumentTypeID, assignment.DocumentTypeCode, assignment.Confidence, candidatesJSON, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return expectOneRow(result, "save classification", id)
}

// ReplaceExtractedFields swaps the whole field set of a document atomically,
// keeping the extraction order in the position column.
func (r *DocumentRepository) ReplaceExtractedFields(ctx context.Context, id string, fields []domain.ExtractedField) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fields tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_fields WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete extracted fields: %w", err)
	}
	for i, f := range fields {
		var number sql.NullFloat64
		var date sql.NullTime
		switch f.Value.Kind {
		case domain.ValueNumber:
			number = sql.NullFloat64{Float64: f.Value.Number, Valid: true}
		case domain.ValueDate:
			date = sql.NullTime{Time: f.Value.Date, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO extracted_fields (
	document_id, position, field_name, value_kind, value_text, value_number, value_date, raw_value, confidence, source_rule_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, id, i, f.FieldName, string(f.Value.Kind), f.Value.Text, number, date, f.RawValue, f.Confidence, f.SourceRuleID)
		if err != nil {
			return fmt.Errorf("insert extracted field %s: %w", f.FieldName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fields tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListExtractedFields(ctx context.Context, id string) ([]domain.ExtractedField, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT field_name, value_kind, value_text, value_number, value_date, raw_value, confidence, source_rule_id
FROM extracted_fields
WHERE document_id = $1
ORDER BY position
`, id)
	if err != nil {
		return nil, fmt.Errorf("list extracted fields: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractedField, 0)
	for rows.Next() {
		var f domain.ExtractedField
		var kind string
		var number sql.NullFloat64
		var date sql.NullTime
		if err := rows.Scan(&f.FieldName, &kind, &f.Value.Text, &number, &date, &f.RawValue, &f.Confidence, &f.SourceRuleID); err != nil {
			return nil, fmt.Errorf("scan extracted field: %w", err)
		}
		f.Value.Kind = domain.ValueKind(kind)
		if number.Valid {
			f.Value.Number = number.Float64
		}
		if date.Valid {
			f.Value.Date = domain.DateOnly(date.Time)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extracted fields: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) MarkIndexed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET indexed = TRUE, updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return expectOneRow(result, "mark indexed", id)
}

func (r *DocumentRepository) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, owner_id, filename, mime_type, storage_path, document_type_id, document_type_code, confidence,
	ocr_status, ocr_text, indexed, status, error_message, created_at, updated_at, deleted_at
FROM documents
WHERE deleted_at IS NOT NULL AND deleted_at < $1
ORDER BY deleted_at
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list soft-deleted documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate soft-deleted documents: %w", err)
	}
	return out, nil
}

// Purge removes the metadata row; fields and reminders go with it through
// ON DELETE CASCADE.
func (r *DocumentRepository) Purge(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge document: %w", err)
	}
	return expectOneRow(result, "purge document", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var typeID, typeCode, ocrText, errMessage sql.NullString
	var ocrStatus, status string
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.MimeType,
		&doc.StoragePath,
		&typeID,
		&typeCode,
		&doc.Confidence,
		&ocrStatus,
		&ocrText,
		&doc.Indexed,
		&status,
		&errMessage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.DeletedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.DocumentTypeID = typeID.String
	doc.DocumentTypeCode = typeCode.String
	doc.OCRText = ocrText.String
	doc.Error = errMessage.String
	doc.OCRStatus = domain.OCRStatus(ocrStatus)
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

func expectOneRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
