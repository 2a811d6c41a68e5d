package apptest

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userBody struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type noteBody struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type todoBody struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

func registerAndLogin(t *testing.T, app *App, email string) {
	t.Helper()
	app.Logout()
	res := app.Register(email, "someone", "secret99")
	require.NotNil(t, res)
	require.Equal(t, http.StatusCreated, res.Status, res.String())
}

func TestHealth(t *testing.T) {
	app := New(t)

	res := app.Get("/api/health", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"status":"ok"}`, res.String())
}

func TestGetDoesNotFailOnErrorStatus(t *testing.T) {
	app := New(t)

	res := app.Get("/api/notes", url.Values{"limit": {"5"}})
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = app.Get("/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestRegisterUsesDefaults(t *testing.T) {
	app := New(t)

	res := app.Register("", "", "")
	require.NotNil(t, res)
	require.Equal(t, http.StatusCreated, res.Status, res.String())

	var u userBody
	require.NoError(t, res.JSON(&u))
	assert.Equal(t, DefaultUser.Email, u.Email)
	assert.Equal(t, DefaultUser.Name, u.Name)
	assert.True(t, app.IsLogin(), "registration starts a session")

	assert.Nil(t, app.Register("", "", ""), "existing email is not posted again")
}

func TestLoginLogout(t *testing.T) {
	app := New(t)
	require.NotNil(t, app.Register("", "", ""))
	app.Logout()
	assert.False(t, app.IsLogin())

	assert.False(t, app.Login(DefaultUser.Email, "wrong-password"))
	assert.False(t, app.IsLogin())

	assert.True(t, app.Login(DefaultUser.Email, DefaultUser.Password))
	assert.True(t, app.IsLogin())

	var u userBody
	require.NoError(t, app.Get("/api/user/me", nil).JSON(&u))
	assert.Equal(t, DefaultUser.Email, u.Email)

	app.Logout()
	assert.False(t, app.IsLogin())
}

func TestLoginEndpoint(t *testing.T) {
	app := New(t)
	require.NotNil(t, app.Register("", "", ""))
	app.Logout()

	res := app.Post("/api/user/login", url.Values{
		"email":    {DefaultUser.Email},
		"password": {"nope-nope"},
	})
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = app.PostJSON("/api/user/login", map[string]string{
		"email":    DefaultUser.Email,
		"password": DefaultUser.Password,
	})
	assert.Equal(t, http.StatusOK, res.Status, res.String())
	assert.True(t, app.IsLogin())
}

func TestRegisterValidation(t *testing.T) {
	app := New(t)

	res := app.Post("/api/user/register", url.Values{
		"email":    {"not-an-email"},
		"name":     {"x"},
		"password": {"123"},
	})
	require.Equal(t, http.StatusBadRequest, res.Status)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, res.JSON(&body))
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "password")

	require.NotNil(t, app.Register("", "", ""))
	app.Logout()
	res = app.Post("/api/user/register", url.Values{
		"email":    {DefaultUser.Email},
		"name":     {"another"},
		"password": {"123456"},
	})
	assert.Equal(t, http.StatusConflict, res.Status)
}

func TestNotesArePrivatePerUser(t *testing.T) {
	app := New(t)

	registerAndLogin(t, app, "alice@notebox.local")
	for i := 1; i <= 3; i++ {
		res := app.Post("/api/notes", url.Values{"title": {fmt.Sprintf("alice %d", i)}})
		require.Equal(t, http.StatusCreated, res.Status, res.String())
		var n noteBody
		require.NoError(t, res.JSON(&n))
		assert.Equal(t, int64(i), n.ID)
	}

	registerAndLogin(t, app, "bob@notebox.local")
	res := app.PostJSON("/api/notes", map[string]string{"title": "bob 1", "body": "hello"})
	require.Equal(t, http.StatusCreated, res.Status, res.String())
	var n noteBody
	require.NoError(t, res.JSON(&n))
	assert.Equal(t, int64(1), n.ID, "bob starts his own sequence")

	res = app.Get("/api/notes/1", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.NoError(t, res.JSON(&n))
	assert.Equal(t, "bob 1", n.Title)
	assert.Equal(t, "hello", n.Body)

	assert.Equal(t, http.StatusNotFound, app.Get("/api/notes/2", nil).Status)

	var count struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, app.Get("/api/notes/count", nil).JSON(&count))
	assert.Equal(t, int64(1), count.Count)

	require.True(t, app.Login("alice@notebox.local", "secret99"))
	var list struct {
		Items []noteBody `json:"items"`
		Total int64      `json:"total"`
	}
	res = app.Get("/api/notes", url.Values{"order": {"private_id DESC"}, "limit": {"2"}})
	require.Equal(t, http.StatusOK, res.Status, res.String())
	require.NoError(t, res.JSON(&list))
	assert.Equal(t, int64(3), list.Total)
	require.Len(t, list.Items, 2)
	assert.Equal(t, int64(3), list.Items[0].ID)
	assert.Equal(t, "alice 3", list.Items[0].Title)
	assert.Equal(t, int64(2), list.Items[1].ID)
}

func TestNoteUpdateDelete(t *testing.T) {
	app := New(t)
	registerAndLogin(t, app, "carol@notebox.local")

	require.Equal(t, http.StatusCreated, app.Post("/api/notes", url.Values{"title": {"draft"}}).Status)

	res := app.Post("/api/notes/1", url.Values{"body": {"filled in"}})
	require.Equal(t, http.StatusOK, res.Status, res.String())
	var n noteBody
	require.NoError(t, res.JSON(&n))
	assert.Equal(t, "draft", n.Title)
	assert.Equal(t, "filled in", n.Body)

	assert.Equal(t, http.StatusBadRequest, app.Post("/api/notes/1", nil).Status)
	assert.Equal(t, http.StatusNotFound, app.Post("/api/notes/9", url.Values{"title": {"x"}}).Status)
	assert.Equal(t, http.StatusBadRequest, app.Get("/api/notes/abc", nil).Status)

	assert.Equal(t, http.StatusOK, app.Delete("/api/notes/1").Status)
	assert.Equal(t, http.StatusNotFound, app.Delete("/api/notes/1").Status)

	res = app.Post("/api/notes", url.Values{"title": {"second"}})
	require.Equal(t, http.StatusCreated, res.Status)
	require.NoError(t, res.JSON(&n))
	assert.Equal(t, int64(2), n.ID, "deleted ids are not reused")
}

func TestOtherUsersRecordsAreUnreachable(t *testing.T) {
	app := New(t)

	registerAndLogin(t, app, "dave@notebox.local")
	require.Equal(t, http.StatusCreated, app.Post("/api/todos", url.Values{"title": {"dave's"}}).Status)

	registerAndLogin(t, app, "erin@notebox.local")
	assert.Equal(t, http.StatusNotFound, app.Get("/api/todos/1", nil).Status)
	assert.Equal(t, http.StatusNotFound, app.Post("/api/todos/1", url.Values{"done": {"true"}}).Status)
	assert.Equal(t, http.StatusNotFound, app.Delete("/api/todos/1").Status)

	require.True(t, app.Login("dave@notebox.local", "secret99"))
	var todo todoBody
	require.NoError(t, app.Get("/api/todos/1", nil).JSON(&todo))
	assert.Equal(t, "dave's", todo.Title)
	assert.False(t, todo.Done)
}

func TestTodos(t *testing.T) {
	app := New(t)
	registerAndLogin(t, app, "frank@notebox.local")

	res := app.PostJSON("/api/todos", map[string]any{"title": "ship it", "done": false})
	require.Equal(t, http.StatusCreated, res.Status, res.String())

	res = app.PostJSON("/api/todos/1", map[string]any{"done": true})
	require.Equal(t, http.StatusOK, res.Status, res.String())
	var todo todoBody
	require.NoError(t, res.JSON(&todo))
	assert.True(t, todo.Done)
	assert.Equal(t, "ship it", todo.Title)

	assert.Equal(t, http.StatusBadRequest, app.Post("/api/todos", url.Values{"title": {""}}).Status)
	assert.Equal(t, http.StatusBadRequest, app.Get("/api/todos", url.Values{"order": {"nope"}}).Status)
	assert.Equal(t, http.StatusBadRequest, app.Get("/api/todos", url.Values{"limit": {"-1"}}).Status)
}

func TestSetUpAndTearDown(t *testing.T) {
	var calls []string
	t.Run("app", func(t *testing.T) {
		app := New(t,
			WithSetUp(func(a *App) {
				calls = append(calls, "setup")
				require.NotNil(t, a.Register("", "", ""))
			}),
			WithTearDown(func(*App) { calls = append(calls, "teardown") }),
		)
		assert.True(t, app.IsLogin())
		calls = append(calls, "test")
	})
	assert.Equal(t, []string{"setup", "test", "teardown"}, calls)
}

// recordingT captures failures raised during cleanup so they can be asserted.
type recordingT struct {
	testing.TB
	mu       sync.Mutex
	cleanups []func()
	errors   []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Cleanup(fn func()) {
	r.cleanups = append(r.cleanups, fn)
}

func (r *recordingT) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) runCleanups() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

func TestReportedErrorsFailTheTest(t *testing.T) {
	rt := &recordingT{TB: t}
	app := New(rt)

	require.NoError(t, app.DB().Close())
	res := app.Get("/api/health", nil)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, app.Errors(), "Health check failed")

	rt.runCleanups()
	require.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], "application reported errors")
	assert.Contains(t, rt.errors[0], "database is closed")
}

func TestResetErrors(t *testing.T) {
	rt := &recordingT{TB: t}
	app := New(rt)

	require.NoError(t, app.DB().Close())
	app.Get("/api/health", nil)
	require.NotEmpty(t, app.Errors())
	app.ResetErrors()

	rt.runCleanups()
	assert.Empty(t, rt.errors)
}

func TestChangePassword(t *testing.T) {
	app := New(t)
	require.NotNil(t, app.Register("", "", ""))

	res := app.Post("/api/user/password", url.Values{
		"current_password": {"wrong-one"},
		"new_password":     {"brand-new"},
	})
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = app.Post("/api/user/password", url.Values{
		"current_password": {DefaultUser.Password},
		"new_password":     {"abc"},
	})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = app.Post("/api/user/password", url.Values{
		"current_password": {DefaultUser.Password},
		"new_password":     {"brand-new"},
	})
	require.Equal(t, http.StatusOK, res.Status, res.String())

	app.Logout()
	assert.False(t, app.Login(DefaultUser.Email, DefaultUser.Password))
	assert.True(t, app.Login(DefaultUser.Email, "brand-new"))
}
