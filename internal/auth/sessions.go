// Package auth handles sign-in through Slack or Google and keeps the
// resulting sessions in SQLite.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is a signed-in user.
type Session struct {
	ID          string    `json:"-"`
	User        string    `json:"user"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Provider    string    `json:"provider"`
	SlackUserID string    `json:"slackUserId,omitempty"`
	SlackToken  string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionStore keeps sessions in a SQLite database.
type SessionStore struct {
	db     *sql.DB
	sealer *Sealer
	ttl    time.Duration
	now    func() time.Time
}

// OpenSessionStore opens or creates the session database at path.
// ":memory:" gives a throwaway store.
func OpenSessionStore(path string, sealer *Sealer, ttl time.Duration) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session schema: %w", err)
	}
	return &SessionStore{db: db, sealer: sealer, ttl: ttl, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_slug TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			provider TEXT NOT NULL,
			slack_user_id TEXT,
			slack_token_sealed TEXT,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Create stores sess under a new id and returns it with its times filled in.
func (s *SessionStore) Create(ctx context.Context, sess Session) (Session, error) {
	sealed, err := s.sealer.Seal(sess.SlackToken)
	if err != nil {
		return Session{}, fmt.Errorf("sealing slack token: %w", err)
	}
	now := s.now().UTC().Truncate(time.Second)
	sess.ID = uuid.NewString()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_slug, name, email, provider,
			slack_user_id, slack_token_sealed, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.User, sess.Name, sess.Email, sess.Provider,
		sess.SlackUserID, sealed, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get returns the live session with id.
func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		sess             Session
		email, slackUser sql.NullString
		sealed           sql.NullString
		created, expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_slug, name, email, provider,
			slack_user_id, slack_token_sealed, created_at, expires_at
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.User, &sess.Name, &email, &sess.Provider,
		&slackUser, &sealed, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session: %w", err)
	}

	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	sess.CreatedAt = time.Unix(created, 0).UTC()
	sess.Email = email.String
	sess.SlackUserID = slackUser.String

	token, err := s.sealer.Open(sealed.String)
	if err != nil {
		// a rotated secret invalidates stored tokens, not the session
		token = ""
	}
	sess.SlackToken = token
	return sess, nil
}

// Delete removes the session with id. Unknown ids are not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Purge removes expired sessions and reports how many were removed.
func (s *SessionStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return res.RowsAffected()
}
