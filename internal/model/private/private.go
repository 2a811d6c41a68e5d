// Package private hides the shared primary key of a table behind a per-user
// sequence.
//
// A table wrapped by Model carries an owner column (user_id) and a private id
// column (private_id) with a unique index over the pair. Inserts take the
// next private id of the logged in user from a counter table, and every
// other operation addresses rows by (session user, private id). Each user
// therefore sees their own dense id sequence while the table keeps its real
// auto increment key untouched.
//
// All and Count rewrite the caller's where clause to add the owner filter.
// To keep that from surprising anyone, a where clause that already names the
// owner column is rejected; set Query.IgnorePrivateUserKey to manage the
// owner filter yourself.
//
// Records returned by Model have their PrimaryKey switched to the private id
// column so Record.ID reports the private id. The wrapped model itself is
// never altered.
//
// Converting an existing table: backfill user_id and private_id for every
// row, seed private_counters with the highest private_id per user, then add
// the UNIQUE (user_id, private_id) index.
package private

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/notebox/internal/model"
)

const (
	DefaultUserIDKey  = "user_id"
	DefaultPrimaryKey = "private_id"
)

var (
	// ErrNotLoggedIn is returned when an operation needs a session user and there is none.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUserKeyInWhere is returned when a where clause already filters on the owner column.
	ErrUserKeyInWhere = errors.New("where clause references the owner column")
	// ErrPrivateIDProvided is returned when insert data sets the private id itself.
	ErrPrivateIDProvided = errors.New("private id is assigned automatically")
	// ErrMissingColumn is returned by New when the table lacks a required column.
	ErrMissingColumn = errors.New("missing column")
	// ErrInvalidUserID is returned when insert data carries a non-integer owner.
	ErrInvalidUserID = errors.New("invalid user id")
)

// Counter tracks the highest private id handed out per (table, user).
type Counter interface {
	NextPrivateID(ctx context.Context, table string, userID int64) (int64, error)
	IncPrivateID(ctx context.Context, table string, userID int64) error
}

// SessionFunc reports the logged in user carried by ctx.
type SessionFunc func(ctx context.Context) (userID int64, ok bool)

// Option configures a Model.
type Option func(*Model)

// WithUserIDKey sets the owner column. Default user_id.
func WithUserIDKey(column string) Option {
	return func(m *Model) { m.userIDKey = column }
}

// WithPrimaryKey sets the private id column. Default private_id.
func WithPrimaryKey(column string) Option {
	return func(m *Model) { m.primaryKey = column }
}

// Model decorates a model.Model with per-user private ids.
type Model struct {
	model   model.Model
	counter Counter
	session SessionFunc

	userIDKey  string
	primaryKey string
	userKeyRe  *regexp.Regexp

	// serializes allocate, insert, increment
	mu sync.Mutex
}

var _ model.Model = (*Model)(nil)

// New wraps m. Both the owner and private id columns must exist in m.
func New(m model.Model, counter Counter, session SessionFunc, opts ...Option) (*Model, error) {
	p := &Model{
		model:      m,
		counter:    counter,
		session:    session,
		userIDKey:  DefaultUserIDKey,
		primaryKey: DefaultPrimaryKey,
	}
	for _, opt := range opts {
		opt(p)
	}

	columns := m.ColumnNames()
	for _, c := range []string{p.primaryKey, p.userIDKey} {
		if !slices.Contains(columns, c) {
			return nil, fmt.Errorf("%s.%s: %w", m.Table(), c, ErrMissingColumn)
		}
	}

	p.userKeyRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(p.userIDKey) + `\b`)
	return p, nil
}

func (p *Model) Table() string         { return p.model.Table() }
func (p *Model) PrimaryKey() string    { return p.primaryKey }
func (p *Model) UserIDKey() string     { return p.userIDKey }
func (p *Model) ColumnNames() []string { return p.model.ColumnNames() }

// Insert stores data as a new row owned by data's user_id, or by the session
// user when data has none, and returns the private id it was given.
func (p *Model) Insert(ctx context.Context, data model.Data) (int64, error) {
	return p.insert(ctx, data, p.model.Insert)
}

// ReplaceInsert is Insert through the wrapped model's ReplaceInsert.
func (p *Model) ReplaceInsert(ctx context.Context, data model.Data) (int64, error) {
	return p.insert(ctx, data, p.model.ReplaceInsert)
}

func (p *Model) insert(ctx context.Context, data model.Data, write func(context.Context, model.Data) (int64, error)) (int64, error) {
	data = data.Clone()

	userID, err := p.setUserID(ctx, data)
	if err != nil {
		return 0, err
	}
	if _, ok := data[p.primaryKey]; ok {
		return 0, fmt.Errorf("%s.%s: %w", p.Table(), p.primaryKey, ErrPrivateIDProvided)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	privateID, err := p.counter.NextPrivateID(ctx, p.Table(), userID)
	if err != nil {
		return 0, err
	}
	data[p.primaryKey] = privateID

	if _, err := write(ctx, data); err != nil {
		return 0, err
	}
	if err := p.counter.IncPrivateID(ctx, p.Table(), userID); err != nil {
		return 0, err
	}

	log.Trace().
		Str("table", p.Table()).
		Int64("user_id", userID).
		Int64("private_id", privateID).
		Msg("Allocated private id")

	return privateID, nil
}

// Delete removes the session user's row with privateID. It returns 0 when
// the user has no such row.
func (p *Model) Delete(ctx context.Context, privateID int64) (int64, error) {
	item, err := p.itemByPrivateID(ctx, privateID)
	if err != nil || item == nil {
		return 0, err
	}
	return p.model.Delete(ctx, item.ID())
}

// Update writes data to the session user's row with privateID. It returns 0
// when the user has no such row.
func (p *Model) Update(ctx context.Context, privateID int64, data model.Data) (int64, error) {
	data = data.Clone()
	item, err := p.itemByPrivateID(ctx, privateID)
	if err != nil || item == nil {
		return 0, err
	}
	return p.model.Update(ctx, item.ID(), data)
}

// Get returns the session user's row with privateID, or nil.
func (p *Model) Get(ctx context.Context, privateID int64) (*model.Record, error) {
	item, err := p.itemByPrivateID(ctx, privateID)
	if err != nil || item == nil {
		return nil, err
	}
	rec, err := p.model.Get(ctx, item.ID())
	if err != nil {
		return nil, err
	}
	return p.remap(rec), nil
}

// Gets returns the session user's rows for privateIDs, skipping missing ones.
func (p *Model) Gets(ctx context.Context, privateIDs []int64) ([]*model.Record, error) {
	records := make([]*model.Record, 0, len(privateIDs))
	for _, id := range privateIDs {
		rec, err := p.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// GetOneByWhere returns the session user's first row matching where, or nil.
// where must not mention the owner column; use All with
// IgnorePrivateUserKey for that.
func (p *Model) GetOneByWhere(ctx context.Context, where string, args ...any) (*model.Record, error) {
	if p.userKeyRe.MatchString(where) {
		return nil, fmt.Errorf("%q: %w", where, ErrUserKeyInWhere)
	}
	userID, ok := p.session(ctx)
	if !ok {
		return nil, ErrNotLoggedIn
	}

	if where == "" {
		where = p.userIDKey + " = ?"
	} else {
		where = fmt.Sprintf("(%s) AND %s = ?", where, p.userIDKey)
	}
	args = append(slices.Clone(args), userID)

	rec, err := p.model.GetOneByWhere(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	return p.remap(rec), nil
}

// All returns the session user's rows matching q.
func (p *Model) All(ctx context.Context, q model.Query) ([]*model.Record, error) {
	q, err := p.scopeToUser(ctx, q)
	if err != nil {
		return nil, err
	}
	records, err := p.model.All(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		p.remap(rec)
	}
	return records, nil
}

// Count returns the number of the session user's rows matching q.
func (p *Model) Count(ctx context.Context, q model.Query) (int64, error) {
	q, err := p.scopeToUser(ctx, q)
	if err != nil {
		return 0, err
	}
	return p.model.Count(ctx, q)
}

func (p *Model) setUserID(ctx context.Context, data model.Data) (int64, error) {
	if v, ok := data[p.userIDKey]; ok {
		userID, ok := model.ToInt64(v)
		if !ok {
			return 0, fmt.Errorf("%s.%s=%v: %w", p.Table(), p.userIDKey, v, ErrInvalidUserID)
		}
		return userID, nil
	}

	userID, ok := p.session(ctx)
	if !ok {
		return 0, fmt.Errorf("%s.%s not set: %w", p.Table(), p.userIDKey, ErrNotLoggedIn)
	}
	data[p.userIDKey] = userID
	return userID, nil
}

func (p *Model) itemByPrivateID(ctx context.Context, privateID int64) (*model.Record, error) {
	userID, ok := p.session(ctx)
	if !ok {
		return nil, ErrNotLoggedIn
	}
	where := fmt.Sprintf("%s = ? AND %s = ?", p.userIDKey, p.primaryKey)
	return p.model.GetOneByWhere(ctx, where, userID, privateID)
}

func (p *Model) scopeToUser(ctx context.Context, q model.Query) (model.Query, error) {
	q = q.Clone()

	userID, ok := p.session(ctx)
	if !ok {
		return q, ErrNotLoggedIn
	}
	if q.IgnorePrivateUserKey {
		return q, nil
	}

	if q.Where == "" {
		q.Where = p.userIDKey + " = ?"
		q.Args = []any{userID}
		return q, nil
	}
	if p.userKeyRe.MatchString(q.Where) {
		return q, fmt.Errorf("%q: %w", q.Where, ErrUserKeyInWhere)
	}
	q.Where = fmt.Sprintf("(%s) AND %s = ?", q.Where, p.userIDKey)
	q.Args = append(q.Args, userID)
	return q, nil
}

// remap points rec's primary key at the private id column.
func (p *Model) remap(rec *model.Record) *model.Record {
	if rec != nil {
		rec.PrimaryKey = p.primaryKey
	}
	return rec
}
