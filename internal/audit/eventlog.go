package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Event types appended by the admission, attestation and grading paths.
const (
	TypeAttemptAdmitted     = "AttemptAdmitted"
	TypeAttemptResumed      = "AttemptResumed"
	TypeAdmissionDenied     = "AdmissionDenied"
	TypeSEBValidationOK     = "SEBValidationOK"
	TypeSEBValidationFailed = "SEBValidationFailed"
	TypeAttemptGraded       = "AttemptGraded"
)

type Event struct {
	Seq       int64
	Type      string
	Key       string // natural key: quizID or attemptID
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Record marshals fields and appends, logging instead of failing the
// request path when the audit write itself errors.
func (r *EventRepo) Record(ctx context.Context, typ, key string, fields map[string]any) {
	if r == nil {
		return
	}
	data, err := json.Marshal(fields)
	if err != nil {
		log.Printf("audit: marshal %s %s: %v", typ, key, err)
		return
	}
	if err := r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(data)}); err != nil {
		log.Printf("audit: append %s %s: %v", typ, key, err)
	}
}

func (r *EventRepo) List(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log
		 WHERE ($1 = '' OR typ = $1) ORDER BY seq DESC LIMIT $2`, typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
