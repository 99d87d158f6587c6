package domain

import "time"

type Reminder struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	OwnerID          string    `json:"owner_id"`
	Kind             string    `json:"kind"`
	Title            string    `json:"title"`
	DueDate          time.Time `json:"due_date"`
	AlertOffsetsDays []int     `json:"alert_offsets_days"`
	AutoCreated      bool      `json:"auto_created"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReminderKey identifies a reminder for de-duplication.
type ReminderKey struct {
	DocumentID string
	Kind       string
	DueDate    time.Time
}

func (r Reminder) Key() ReminderKey {
	return ReminderKey{
		DocumentID: r.DocumentID,
		Kind:       r.Kind,
		DueDate:    DateOnly(r.DueDate),
	}
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
