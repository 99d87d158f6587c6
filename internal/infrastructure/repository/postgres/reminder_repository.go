package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

type ReminderRepository struct {
	db *sql.DB
}

func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) ReminderExists(ctx context.Context, key domain.ReminderKey) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM reminders
	WHERE document_id = $1 AND kind = $2 AND due_date = $3
)
`, key.DocumentID, key.Kind, domain.DateOnly(key.DueDate)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reminder: %w", err)
	}
	return exists, nil
}

// CreateReminder ignores a row that already exists for the same document,
// kind and due date, so concurrent runs cannot duplicate it either.
func (r *ReminderRepository) CreateReminder(ctx context.Context, reminder *domain.Reminder) error {
	offsets := reminder.AlertOffsetsDays
	if offsets == nil {
		offsets = []int{}
	}
	offsetsJSON, err := json.Marshal(offsets)
	if err != nil {
		return fmt.Errorf("marshal alert offsets: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO reminders (id, document_id, owner_id, kind, title, due_date, alert_offsets_days, auto_created, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id, kind, due_date) DO NOTHING
`, reminder.ID, reminder.DocumentID, reminder.OwnerID, reminder.Kind, reminder.Title,
		domain.DateOnly(reminder.DueDate), offsetsJSON, reminder.AutoCreated, reminder.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, owner_id, kind, title, due_date, alert_offsets_days, auto_created, created_at
FROM reminders
WHERE document_id = $1
ORDER BY due_date, kind
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Reminder, 0)
	for rows.Next() {
		var reminder domain.Reminder
		var offsetsRaw []byte
		err := rows.Scan(
			&reminder.ID,
			&reminder.DocumentID,
			&reminder.OwnerID,
			&reminder.Kind,
			&reminder.Title,
			&reminder.DueDate,
			&offsetsRaw,
			&reminder.AutoCreated,
			&reminder.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if err := json.Unmarshal(offsetsRaw, &reminder.AlertOffsetsDays); err != nil {
			return nil, fmt.Errorf("unmarshal alert offsets: %w", err)
		}
		out = append(out, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}
