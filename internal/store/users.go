package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"keyring/internal/storage"
)

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProfileUpdate holds the optional profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
}

const userColumns = `id, email, name, bio, avatar_url, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u                User
		bio, avatar      sql.NullString
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &bio, &avatar, &u.PasswordHash, &created, &updated); err != nil {
		return nil, wrapNotFound(err)
	}
	u.Bio = bio.String
	u.AvatarURL = avatar.String
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// CreateUser inserts a new account. Emails are compared case-insensitively.
// A duplicate email returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	now, ms := s.nowMillis()
	u := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, ms, ms)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail returns the user registered with email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

// UpdateProfile applies the non-nil fields of upd and returns the updated user.
func (s *Store) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, nullString(*upd.Bio))
	}
	if upd.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, nullString(*upd.AvatarURL))
	}
	_, ms := s.nowMillis()
	sets = append(sets, "updated_at = ?")
	args = append(args, ms, id)

	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if err := affected(s.exec(ctx, q, args...)); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes the account and, through foreign keys, everything it owns.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return affected(s.exec(ctx, `DELETE FROM users WHERE id = ?`, id))
}
