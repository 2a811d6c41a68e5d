// Package apptest drives the notebox HTTP handler in-process for tests.
//
// Each App gets its own temporary database and cookie jar. Requests never
// touch the network; they are served straight from the router, so a login
// cookie set by one request is sent on the next one like a browser would.
//
// Errors the application reports while serving (handler failures, panics)
// are collected in an error log. When the test finishes the log must be
// empty, otherwise the test fails with its contents. This surfaces server
// side failures even when the test only looked at a status code.
package apptest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/notebox/internal/auth"
	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/web"
	"github.com/saltyorg/notebox/internal/web/middleware"
)

// BaseURL is the origin requests are addressed to. It is HTTPS so secure
// session cookies round-trip through the jar.
const BaseURL = "https://notebox.test"

// DefaultUser is used by Register for any field left blank.
var DefaultUser = struct {
	Email    string
	Name     string
	Password string
}{
	Email:    "test@notebox.local",
	Name:     "notebox",
	Password: "123456",
}

// Option configures an App.
type Option func(*App)

// WithSetUp runs fn once the App is built, before the test uses it.
func WithSetUp(fn func(*App)) Option {
	return func(a *App) { a.setUp = append(a.setUp, fn) }
}

// WithTearDown runs fn when the test finishes, before the error log is checked.
func WithTearDown(fn func(*App)) Option {
	return func(a *App) { a.tearDown = append(a.tearDown, fn) }
}

// App is an in-process notebox instance.
type App struct {
	t        testing.TB
	db       *database.DB
	server   *web.Server
	handler  http.Handler
	jar      *cookiejar.Jar
	base     *url.URL
	errors   *errorLog
	setUp    []func(*App)
	tearDown []func(*App)
}

// New builds a fresh App for t and registers its cleanup.
func New(t testing.TB, opts ...Option) *App {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "apptest.db"))
	if err != nil {
		t.Fatalf("apptest: open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("apptest: migrate: %v", err)
	}

	errs := &errorLog{}
	server, err := web.NewServer(context.Background(), db, web.Options{
		ErrorLog:    errs,
		AuthService: auth.NewAuthService(db, auth.WithBcryptCost(bcrypt.MinCost)),
	})
	if err != nil {
		db.Close()
		t.Fatalf("apptest: build server: %v", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		db.Close()
		t.Fatalf("apptest: cookie jar: %v", err)
	}
	base, _ := url.Parse(BaseURL)

	a := &App{
		t:       t,
		db:      db,
		server:  server,
		handler: server.Handler(),
		jar:     jar,
		base:    base,
		errors:  errs,
	}
	for _, opt := range opts {
		opt(a)
	}

	t.Cleanup(a.finish)

	a.errors.Reset()
	for _, fn := range a.setUp {
		fn(a)
	}
	return a
}

func (a *App) finish() {
	for _, fn := range a.tearDown {
		fn(a)
	}
	if msg := a.errors.String(); msg != "" {
		a.t.Errorf("apptest: application reported errors:\n%s", msg)
	}
	a.db.Close()
}

// DB returns the App's database.
func (a *App) DB() *database.DB { return a.db }

// Server returns the App's web server.
func (a *App) Server() *web.Server { return a.server }

// Errors returns what the application has reported so far.
func (a *App) Errors() string { return a.errors.String() }

// ResetErrors discards reported errors, for tests that provoke them on purpose.
func (a *App) ResetErrors() { a.errors.Reset() }

// Response is a captured HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns the body as text.
func (r *Response) String() string {
	return string(r.Body)
}

// Get requests url with params appended to its query string. Any status is
// returned as is.
func (a *App) Get(path string, params url.Values) *Response {
	a.t.Helper()
	return a.do(http.MethodGet, withQuery(path, params), "", nil)
}

// Post submits params form encoded.
func (a *App) Post(path string, params url.Values) *Response {
	a.t.Helper()
	return a.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(params.Encode()))
}

// PostJSON submits v as a JSON body.
func (a *App) PostJSON(path string, v any) *Response {
	a.t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		a.t.Fatalf("apptest: marshal %T: %v", v, err)
	}
	return a.do(http.MethodPost, path, "application/json", bytes.NewReader(body))
}

// Delete sends a DELETE request.
func (a *App) Delete(path string) *Response {
	a.t.Helper()
	return a.do(http.MethodDelete, path, "", nil)
}

func (a *App) do(method, target, contentType string, body io.Reader) *Response {
	req := httptest.NewRequest(method, BaseURL+target, body)
	req.RequestURI = target
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range a.jar.Cookies(req.URL) {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	a.jar.SetCookies(req.URL, res.Cookies())

	data, err := io.ReadAll(res.Body)
	if err != nil {
		a.t.Fatalf("apptest: read body: %v", err)
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}
}

// Register creates an account through the register endpoint unless one with
// the email already exists. Blank fields take DefaultUser's values. It
// returns nil when no request was made.
func (a *App) Register(email, name, password string) *Response {
	a.t.Helper()

	if email == "" {
		email = DefaultUser.Email
	}
	if name == "" {
		name = DefaultUser.Name
	}
	if password == "" {
		password = DefaultUser.Password
	}

	existing, err := a.db.GetUserByEmail(email)
	if err != nil {
		a.t.Fatalf("apptest: look up %s: %v", email, err)
	}
	if existing != nil {
		return nil
	}

	return a.Post("/api/user/register", url.Values{
		"email":    {email},
		"name":     {name},
		"password": {password},
	})
}

// Login checks the credentials directly and, when they match, installs a
// session cookie for the following requests.
func (a *App) Login(email, password string) bool {
	a.t.Helper()

	authService := a.server.AuthService()
	user, err := authService.Authenticate(email, password)
	if err != nil {
		a.t.Fatalf("apptest: authenticate %s: %v", email, err)
	}
	if user == nil {
		return false
	}

	session, err := authService.CreateSession(user.ID)
	if err != nil {
		a.t.Fatalf("apptest: create session: %v", err)
	}
	a.jar.SetCookies(a.base, []*http.Cookie{{
		Name:     middleware.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
	}})
	return true
}

// Logout ends the current session through the logout endpoint.
func (a *App) Logout() {
	a.t.Helper()
	a.Post("/api/user/logout", nil)
}

// IsLogin reports whether the cookie jar holds a live session.
func (a *App) IsLogin() bool {
	a.t.Helper()
	return a.Get("/api/user/me", nil).Status == http.StatusOK
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

// errorLog is the sink the server copies reported errors to.
type errorLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *errorLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *errorLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (l *errorLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Reset()
}
