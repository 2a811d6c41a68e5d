// Package records opens the per-user tables of the application and wraps
// each in the private id decorator.
package records

import (
	"context"
	"fmt"

	"github.com/saltyorg/notebox/internal/auth"
	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/model"
	"github.com/saltyorg/notebox/internal/model/private"
)

const (
	NotesTable = "notes"
	TodosTable = "todos"
)

// Store holds the private models served by the API.
type Store struct {
	Notes *private.Model
	Todos *private.Model
}

// Open binds the private tables of db. The logged in user is read from the
// request context with auth.SessionUserID.
func Open(ctx context.Context, db *database.DB) (*Store, error) {
	notes, err := openPrivate(ctx, db, NotesTable)
	if err != nil {
		return nil, err
	}
	todos, err := openPrivate(ctx, db, TodosTable)
	if err != nil {
		return nil, err
	}
	return &Store{Notes: notes, Todos: todos}, nil
}

func openPrivate(ctx context.Context, db *database.DB, name string) (*private.Model, error) {
	table, err := model.Open(ctx, db, name)
	if err != nil {
		return nil, err
	}
	m, err := private.New(table, db, auth.SessionUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap %s: %w", name, err)
	}
	return m, nil
}
