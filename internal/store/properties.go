package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Property keys for remembered task-creation defaults.
const (
	KeyLastProduct   = "last.product"
	KeyLastComponent = "last.component"
)

// SetProperty stores a repository-scoped value.
func (s *Store) SetProperty(ctx context.Context, repository, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repository_properties (repository_url, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(repository_url, key) DO UPDATE SET value = excluded.value
	`, repository, key, value)
	if err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}

// Property returns a repository-scoped value, or "" when unset.
func (s *Store) Property(ctx context.Context, repository, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM repository_properties
		WHERE repository_url = ? AND key = ?
	`, repository, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get property %s: %w", key, err)
	}
	return value, nil
}

// LastSelection is the product and component last used to create a task.
type LastSelection struct {
	Product   string `json:"product"`
	Component string `json:"component"`
}

// SetLastSelection remembers the product and component of a created task.
func (s *Store) SetLastSelection(ctx context.Context, repository string, sel LastSelection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set last selection: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		KeyLastProduct:   sel.Product,
		KeyLastComponent: sel.Component,
	} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO repository_properties (repository_url, key, value)
			VALUES (?, ?, ?)
			ON CONFLICT(repository_url, key) DO UPDATE SET value = excluded.value
		`, repository, key, value)
		if err != nil {
			return fmt.Errorf("set last selection: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set last selection: %w", err)
	}
	return nil
}

// LastSelection returns the remembered product and component.
func (s *Store) LastSelection(ctx context.Context, repository string) (LastSelection, error) {
	product, err := s.Property(ctx, repository, KeyLastProduct)
	if err != nil {
		return LastSelection{}, err
	}
	component, err := s.Property(ctx, repository, KeyLastComponent)
	if err != nil {
		return LastSelection{}, err
	}
	return LastSelection{Product: product, Component: component}, nil
}
