package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := OpenSessionStore(filepath.Join(t.TempDir(), "sessions.db"), NewSealer("secret"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionStore_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.Create(ctx, Session{
		User:        "ken-sato",
		Name:        "Ken Sato",
		Email:       "ken@polycle.jp",
		Provider:    ProviderSlack,
		SlackUserID: "U1",
		SlackToken:  "xoxp-secret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, created.CreatedAt.Add(time.Hour), created.ExpiresAt)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	var sealed string
	require.NoError(t, s.db.QueryRow("SELECT slack_token_sealed FROM sessions WHERE id = ?", created.ID).Scan(&sealed))
	assert.NotContains(t, sealed, "xoxp-secret")

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, s.Delete(ctx, created.ID))
}

func TestSessionStore_ExpiryAndPurge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old, err := s.Create(ctx, Session{User: "a", Name: "A", Provider: ProviderGoogle})
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	fresh, err := s.Create(ctx, Session{User: "b", Name: "B", Provider: ProviderGoogle})
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(ctx, fresh.ID)
	require.NoError(t, err)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionStore_RotatedSecretDropsToken(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s1, err := OpenSessionStore(path, NewSealer("one"), time.Hour)
	require.NoError(t, err)
	sess, err := s1.Create(ctx, Session{User: "a", Name: "A", Provider: ProviderSlack, SlackToken: "xoxp-1"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenSessionStore(path, NewSealer("two"), time.Hour)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SlackToken)
}

func TestSealer(t *testing.T) {
	s := NewSealer("secret")

	sealed, err := s.Seal("xoxp-token")
	require.NoError(t, err)
	again, err := s.Seal("xoxp-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "xoxp-token", plain)

	_, err = NewSealer("other").Open(sealed)
	assert.ErrorIs(t, err, ErrUnseal)
	_, err = s.Open("!!")
	assert.ErrorIs(t, err, ErrUnseal)

	empty, err := s.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewState(t *testing.T) {
	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
