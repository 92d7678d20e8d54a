package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Submission is one entry of the submission log.
type Submission struct {
	ID         string   `json:"id"`
	Repository string   `json:"repository"`
	TaskID     string   `json:"task_id"`
	Reference  string   `json:"reference,omitempty"`
	Outcome    string   `json:"outcome"`
	Fields     []string `json:"fields"`
	Seq        int64    `json:"seq"`
}

// RecordSubmission appends to the submission log and returns the assigned
// seq. Recording the same id twice is a no-op that returns 0.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (int64, error) {
	fields := sub.Fields
	if fields == nil {
		fields = []string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, repository_url, task_id, reference, outcome, fields, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM submissions))
		ON CONFLICT(id) DO NOTHING
	`, sub.ID, sub.Repository, sub.TaskID, sub.Reference, sub.Outcome, string(fieldsJSON))
	if err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM submissions WHERE id = ?`, sub.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}
	return seq, nil
}

// Submissions returns the log entries of a repository, optionally limited to
// one task, in seq order.
func (s *Store) Submissions(ctx context.Context, repository, taskID string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_url, task_id, reference, outcome, fields, seq
		FROM submissions
		WHERE repository_url = ? AND (? = '' OR task_id = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, repository, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := []Submission{}
	for rows.Next() {
		var sub Submission
		var fields string
		if err := rows.Scan(&sub.ID, &sub.Repository, &sub.TaskID, &sub.Reference, &sub.Outcome, &fields, &sub.Seq); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
			return nil, fmt.Errorf("decode submission fields: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}
