package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tasksync/internal/taskdata"
)

// SaveBaseline stores tree as the synced baseline of a task, replacing any
// previous one.
func (s *Store) SaveBaseline(ctx context.Context, repository, taskID string, tree *taskdata.Tree) error {
	data, err := taskdata.MarshalAttributes(tree)
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	fp, err := taskdata.Fingerprint(tree)
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baselines (repository_url, task_id, fingerprint, attributes, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM baselines))
		ON CONFLICT(repository_url, task_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			attributes = excluded.attributes,
			seq = excluded.seq
	`, repository, taskID, fp, string(data))
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

// LoadBaseline returns the stored baseline of a task. The boolean is false
// when none exists.
func (s *Store) LoadBaseline(ctx context.Context, repository, taskID string) (*taskdata.Tree, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT attributes FROM baselines
		WHERE repository_url = ? AND task_id = ?
	`, repository, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load baseline: %w", err)
	}

	tree, err := taskdata.UnmarshalAttributes([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("load baseline: %w", err)
	}
	return tree, true, nil
}

// BaselineFingerprint returns the fingerprint of a stored baseline, or ""
// when none exists.
func (s *Store) BaselineFingerprint(ctx context.Context, repository, taskID string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint FROM baselines
		WHERE repository_url = ? AND task_id = ?
	`, repository, taskID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("baseline fingerprint: %w", err)
	}
	return fp, nil
}
