package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/notebox/internal/database"
)

const (
	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
	// BcryptCost is the bcrypt cost factor
	BcryptCost = 12
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// User represents a user account
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents a user session
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithBcryptCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *AuthService) { s.bcryptCost = cost }
}

// WithSessionDuration overrides how long a session lives without activity.
func WithSessionDuration(d time.Duration) Option {
	return func(s *AuthService) { s.sessionDuration = d }
}

// AuthService handles authentication
type AuthService struct {
	db              *database.DB
	bcryptCost      int
	sessionDuration time.Duration
	now             func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(db *database.DB, opts ...Option) *AuthService {
	s := &AuthService{
		db:              db,
		bcryptCost:      BcryptCost,
		sessionDuration: SessionDuration,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword hashes a password using bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateUser creates a new user account
func (s *AuthService) CreateUser(email, name, password string) (*User, error) {
	existing, err := s.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	rec, err := s.db.CreateUser(email, name, hash)
	if err != nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// GetUserByEmail retrieves a user by email
func (s *AuthService) GetUserByEmail(email string) (*User, error) {
	rec, err := s.db.GetUserByEmail(email)
	if err != nil || rec == nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(id int64) (*User, error) {
	rec, err := s.db.GetUserByID(id)
	if err != nil || rec == nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// Authenticate verifies credentials and returns the user
func (s *AuthService) Authenticate(email, password string) (*User, error) {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// UpdatePassword changes a user's password
func (s *AuthService) UpdatePassword(userID int64, newPassword string) error {
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(userID, hash)
}

// CreateSession creates a new session for a user
func (s *AuthService) CreateSession(userID int64) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	rec, err := s.db.CreateSession(sessionID, userID, s.now().Add(s.sessionDuration))
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// GetSession retrieves a session by ID. Expired sessions are deleted and
// reported as missing.
func (s *AuthService) GetSession(sessionID string) (*Session, error) {
	rec, err := s.db.GetSession(sessionID)
	if err != nil || rec == nil {
		return nil, err
	}

	if s.now().After(rec.ExpiresAt) {
		if err := s.DeleteSession(sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	return &Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// DeleteSession removes a session
func (s *AuthService) DeleteSession(sessionID string) error {
	return s.db.DeleteSession(sessionID)
}

// ExtendSession extends a session's expiration
func (s *AuthService) ExtendSession(sessionID string) error {
	return s.db.ExtendSession(sessionID, s.now().Add(s.sessionDuration))
}

func userFromRecord(rec *database.UserRecord) *User {
	return &User{
		ID:           rec.ID,
		Email:        rec.Email,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
