package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"keyring/internal/core"
)

const (
	// HistoryPageSize is the number of chats per history page.
	HistoryPageSize = 20
	// SearchLimit caps title search results.
	SearchLimit = 20
	// UntitledChat is used when neither a title nor a first message is available.
	UntitledChat = "Untitled Chat"

	titleRunes = 50
)

// ChatSummary is a chat without its messages, as shown in history lists.
type ChatSummary struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Provider  core.Provider `json:"provider"`
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Chat is a saved conversation.
type Chat struct {
	ChatSummary
	UserID   string         `json:"userId"`
	Messages []core.Message `json:"messages"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ChatPage is one page of chat history.
type ChatPage struct {
	Chats      []ChatSummary `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

// ChatTitle picks the title for a new chat: the given title, else the first
// 50 characters of the first message, else UntitledChat.
func ChatTitle(title string, messages []core.Message) string {
	if title != "" {
		return title
	}
	if len(messages) > 0 && messages[0].Content != "" {
		r := []rune(messages[0].Content)
		if len(r) > titleRunes {
			r = r[:titleRunes]
		}
		return string(r)
	}
	return UntitledChat
}

// SaveChat stores a new chat for userID.
func (s *Store) SaveChat(ctx context.Context, userID, title string, messages []core.Message, provider core.Provider, model string) (*Chat, error) {
	if messages == nil {
		messages = []core.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}

	now, ms := s.nowMillis()
	c := &Chat{
		ChatSummary: ChatSummary{
			ID:        uuid.NewString(),
			Title:     ChatTitle(title, messages),
			Provider:  provider,
			Model:     model,
			CreatedAt: now,
			UpdatedAt: now,
		},
		UserID:   userID,
		Messages: messages,
	}

	_, err = s.exec(ctx, `
		INSERT INTO chat_histories (id, user_id, title, messages, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, userID, c.Title, string(raw), string(provider), model, ms, ms)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat: %w", err)
	}
	return c, nil
}

func scanSummary(rows *sql.Rows) (ChatSummary, error) {
	var (
		c                ChatSummary
		provider         string
		created, updated int64
	)
	if err := rows.Scan(&c.ID, &c.Title, &provider, &c.Model, &created, &updated); err != nil {
		return c, err
	}
	c.Provider = core.Provider(provider)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (s *Store) summaries(ctx context.Context, query string, args ...any) ([]ChatSummary, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	out := make([]ChatSummary, 0)
	for rows.Next() {
		c, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChats returns page (1-based) of the user's live chats, most recently
// updated first, together with the total count.
func (s *Store) ListChats(ctx context.Context, userID string, page int) (*ChatPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * HistoryPageSize

	var (
		chats []ChatSummary
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chats, err = s.summaries(gctx, `
			SELECT id, title, provider, model, created_at, updated_at FROM chat_histories
			WHERE user_id = ? AND deleted_at IS NULL
			ORDER BY updated_at DESC, id
			LIMIT ? OFFSET ?`, userID, HistoryPageSize, offset)
		return err
	})
	g.Go(func() error {
		err := s.queryRow(gctx,
			`SELECT COUNT(*) FROM chat_histories WHERE user_id = ? AND deleted_at IS NULL`, userID).Scan(&total)
		if err != nil {
			return fmt.Errorf("failed to count chats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ChatPage{
		Chats: chats,
		Pagination: Pagination{
			Page:       page,
			Limit:      HistoryPageSize,
			Total:      total,
			TotalPages: (total + HistoryPageSize - 1) / HistoryPageSize,
		},
	}, nil
}

// SearchChats returns up to SearchLimit live chats whose title contains query,
// ignoring case.
func (s *Store) SearchChats(ctx context.Context, userID, query string) ([]ChatSummary, error) {
	pattern := "%" + escapeLike(query) + "%"
	return s.summaries(ctx, `
		SELECT id, title, provider, model, created_at, updated_at FROM chat_histories
		WHERE user_id = ? AND deleted_at IS NULL AND LOWER(title) LIKE LOWER(?) ESCAPE '\'
		ORDER BY updated_at DESC, id
		LIMIT ?`, userID, pattern, SearchLimit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetChat returns a live chat owned by userID.
func (s *Store) GetChat(ctx context.Context, userID, id string) (*Chat, error) {
	var (
		c                Chat
		provider, raw    string
		created, updated int64
	)
	err := s.queryRow(ctx, `
		SELECT id, user_id, title, messages, provider, model, created_at, updated_at FROM chat_histories
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Title, &raw, &provider, &c.Model, &created, &updated)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	c.Provider = core.Provider(provider)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// ListAllChats returns every live chat of the user with messages, for export.
func (s *Store) ListAllChats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.query(ctx, `
		SELECT id FROM chat_histories WHERE user_id = ? AND deleted_at IS NULL ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// SQLite holds a single connection, so rows must be closed before the
	// per-chat lookups run.
	chats := make([]Chat, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetChat(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, nil
}

// DeleteChat soft-deletes a chat. Deleting an already deleted chat returns ErrNotFound.
func (s *Store) DeleteChat(ctx context.Context, userID, id string) error {
	_, ms := s.nowMillis()
	return affected(s.exec(ctx,
		`UPDATE chat_histories SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		ms, id, userID))
}
