package private

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/model"
)

type userKey struct{}

func asUser(id int64) context.Context {
	return context.WithValue(context.Background(), userKey{}, id)
}

func testSession(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey{}).(int64)
	return id, ok
}

type fixture struct {
	db    *database.DB
	table *model.Table
	notes *Model
	alice int64
	bob   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	alice, err := db.CreateUser("alice@example.com", "alice", "x")
	require.NoError(t, err)
	bob, err := db.CreateUser("bob@example.com", "bob", "x")
	require.NoError(t, err)

	table, err := model.Open(context.Background(), db, "notes")
	require.NoError(t, err)

	notes, err := New(table, db, testSession)
	require.NoError(t, err)

	return &fixture{db: db, table: table, notes: notes, alice: alice.ID, bob: bob.ID}
}

func TestNew_RequiresColumns(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.table, f.db, testSession, WithPrimaryKey("seq"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = New(f.table, f.db, testSession, WithUserIDKey("owner"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestInsert_SequencePerUser(t *testing.T) {
	f := newFixture(t)
	alice, bob := asUser(f.alice), asUser(f.bob)

	var got []int64
	for _, ctx := range []context.Context{alice, bob, alice, alice, bob} {
		id, err := f.notes.Insert(ctx, model.Data{"title": "n"})
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, []int64{1, 1, 2, 3, 2}, got)

	// The shared table keeps its own key sequence
	count, err := f.table.Count(context.Background(), model.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	rec, err := f.table.Get(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, f.bob, rec.Int64("user_id"))
	assert.Equal(t, int64(2), rec.Int64("private_id"))
}

func TestInsert_DoesNotMutateInput(t *testing.T) {
	f := newFixture(t)

	data := model.Data{"title": "n"}
	_, err := f.notes.Insert(asUser(f.alice), data)
	require.NoError(t, err)
	assert.Equal(t, model.Data{"title": "n"}, data)
}

func TestInsert_OwnerFromData(t *testing.T) {
	f := newFixture(t)

	id, err := f.notes.Insert(context.Background(), model.Data{"title": "n", "user_id": f.bob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rec, err := f.notes.Get(asUser(f.bob), id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "n", rec.String("title"))
}

func TestInsert_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.notes.Insert(context.Background(), model.Data{"title": "n"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = f.notes.Insert(asUser(f.alice), model.Data{"title": "n", "private_id": 7})
	assert.ErrorIs(t, err, ErrPrivateIDProvided)

	_, err = f.notes.Insert(asUser(f.alice), model.Data{"title": "n", "user_id": "someone"})
	assert.ErrorIs(t, err, ErrInvalidUserID)

	// A failed write must not burn a private id
	_, err = f.notes.Insert(asUser(f.alice), model.Data{"nope": 1})
	assert.ErrorIs(t, err, model.ErrUnknownColumn)

	id, err := f.notes.Insert(asUser(f.alice), model.Data{"title": "n"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestReplaceInsert(t *testing.T) {
	f := newFixture(t)
	alice := asUser(f.alice)

	first, err := f.notes.ReplaceInsert(alice, model.Data{"title": "a"})
	require.NoError(t, err)
	second, err := f.notes.ReplaceInsert(alice, model.Data{"title": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	alice, bob := asUser(f.alice), asUser(f.bob)

	_, err := f.notes.Insert(bob, model.Data{"title": "bob's"})
	require.NoError(t, err)
	id, err := f.notes.Insert(alice, model.Data{"title": "alice's"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	rec, err := f.notes.Get(alice, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "private_id", rec.PrimaryKey)
	assert.Equal(t, int64(1), rec.ID())
	assert.Equal(t, int64(2), rec.Int64("id"), "real key is left in place")
	assert.Equal(t, "alice's", rec.String("title"))

	missing, err := f.notes.Get(alice, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.notes.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestGets(t *testing.T) {
	f := newFixture(t)
	alice := asUser(f.alice)

	for _, title := range []string{"a", "b", "c"} {
		_, err := f.notes.Insert(alice, model.Data{"title": title})
		require.NoError(t, err)
	}

	recs, err := f.notes.Gets(alice, []int64{3, 9, 1})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].ID())
	assert.Equal(t, int64(1), recs[1].ID())
}

func TestUpdateAndDelete_ScopedToOwner(t *testing.T) {
	f := newFixture(t)
	alice, bob := asUser(f.alice), asUser(f.bob)

	id, err := f.notes.Insert(alice, model.Data{"title": "mine"})
	require.NoError(t, err)

	n, err := f.notes.Update(bob, id, model.Data{"title": "stolen"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.notes.Delete(bob, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.notes.Update(alice, id, model.Data{"title": "renamed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := f.notes.Get(alice, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", rec.String("title"))

	n, err = f.notes.Delete(alice, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err = f.notes.Get(alice, id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Deleted ids are not handed out again
	next, err := f.notes.Insert(alice, model.Data{"title": "again"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	_, err = f.notes.Delete(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = f.notes.Update(context.Background(), 2, model.Data{"title": "x"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestGetOneByWhere(t *testing.T) {
	f := newFixture(t)
	alice, bob := asUser(f.alice), asUser(f.bob)

	_, err := f.notes.Insert(bob, model.Data{"title": "same"})
	require.NoError(t, err)
	_, err = f.notes.Insert(alice, model.Data{"title": "same"})
	require.NoError(t, err)

	rec, err := f.notes.GetOneByWhere(alice, "title = ?", "same")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, f.alice, rec.Int64("user_id"))
	assert.Equal(t, int64(1), rec.ID())

	rec, err = f.notes.GetOneByWhere(alice, "title = ?", "other")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = f.notes.GetOneByWhere(alice, "user_id = ?", f.bob)
	assert.ErrorIs(t, err, ErrUserKeyInWhere)

	_, err = f.notes.GetOneByWhere(context.Background(), "title = ?", "same")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestAllAndCount(t *testing.T) {
	f := newFixture(t)
	alice, bob := asUser(f.alice), asUser(f.bob)

	for _, title := range []string{"a", "b", "c"} {
		_, err := f.notes.Insert(alice, model.Data{"title": title})
		require.NoError(t, err)
	}
	_, err := f.notes.Insert(bob, model.Data{"title": "a"})
	require.NoError(t, err)

	recs, err := f.notes.All(alice, model.Query{OrderBy: "private_id desc"})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{recs[0].ID(), recs[1].ID(), recs[2].ID()})

	q := model.Query{Where: "title = ?", Args: []any{"a"}}
	recs, err = f.notes.All(alice, q)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.alice, recs[0].Int64("user_id"))
	assert.Equal(t, model.Query{Where: "title = ?", Args: []any{"a"}}, q, "caller query is not modified")

	count, err := f.notes.Count(alice, model.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = f.notes.Count(bob, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.notes.All(alice, model.Query{Where: "user_id = ?", Args: []any{f.bob}})
	assert.ErrorIs(t, err, ErrUserKeyInWhere)

	// Word boundary: a column merely containing the name is fine
	_, err = f.notes.Count(alice, model.Query{Where: "title <> 'x_user_id'"})
	require.NoError(t, err)

	count, err = f.notes.Count(alice, model.Query{IgnorePrivateUserKey: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	count, err = f.notes.Count(alice, model.Query{Where: "user_id = ?", Args: []any{f.bob}, IgnorePrivateUserKey: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.notes.All(context.Background(), model.Query{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = f.notes.Count(context.Background(), model.Query{IgnorePrivateUserKey: true})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestInsert_Concurrent(t *testing.T) {
	f := newFixture(t)
	alice := asUser(f.alice)

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.notes.Insert(alice, model.Data{"title": "c"})
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate private id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing private id %d", i)
	}
}
