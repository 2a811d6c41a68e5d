package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserRecord represents a user account stored in the database.
type UserRecord struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord represents a login session stored in the database.
type SessionRecord struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateUser inserts a new user record.
func (db *DB) CreateUser(email, name, passwordHash string) (*UserRecord, error) {
	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO users (email, name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, email, name, passwordHash, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &UserRecord{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(email string) (*UserRecord, error) {
	return db.scanUser(db.QueryRow(`
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*UserRecord, error) {
	return db.scanUser(db.QueryRow(`
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

func (db *DB) scanUser(row *sql.Row) (*UserRecord, error) {
	user := &UserRecord{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUserPassword updates the user's password hash.
func (db *DB) UpdateUserPassword(userID int64, passwordHash string) error {
	_, err := db.Exec(`
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (db *DB) CreateSession(id string, userID int64, expiresAt time.Time) (*SessionRecord, error) {
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, id, userID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SessionRecord{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	session := &SessionRecord{}
	err := db.QueryRow(`
		SELECT id, user_id, expires_at, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session by ID.
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExtendSession updates a session's expiration time.
func (db *DB) ExtendSession(id string, expiresAt time.Time) error {
	_, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (db *DB) DeleteExpiredSessions(now time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
