package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyring/internal/core"
)

func details(t *testing.T, err error) []string {
	t.Helper()
	if err == nil {
		return nil
	}
	var gw *core.GatewayError
	require.True(t, errors.As(err, &gw))
	return gw.Details
}

func TestValidatorEmail(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"a@example.com", true},
		{"first.last@sub.example.co", true},
		{"plain", false},
		{"a@localhost", false},
		{"Name <a@example.com>", false},
		{"a@@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			var v validator
			v.email("email", tt.value)
			assert.Equal(t, tt.valid, v.err() == nil, v.details)
		})
	}
}

func TestValidatorLengthCountsCharacters(t *testing.T) {
	var v validator
	v.length("name", "éé", 2, 2)
	assert.NoError(t, v.err())

	v.length("name", strings.Repeat("é", 3), 0, 2)
	assert.Equal(t, []string{`"name" length must be less than or equal to 2 characters long`}, details(t, v.err()))
}

func TestRegisterRequestTrimsEmail(t *testing.T) {
	req := registerRequest{Email: "  ada@example.com ", Password: "password123", Name: "Ada"}
	require.NoError(t, req.validate())
	assert.Equal(t, "ada@example.com", req.Email)
}

func TestProfileRequest(t *testing.T) {
	empty := ""
	long := strings.Repeat("b", 501)
	name := "Al"

	tests := []struct {
		name string
		req  profileRequest
		want []string
	}{
		{"name only", profileRequest{Name: &name}, nil},
		{"clearing bio is allowed", profileRequest{Bio: &empty}, nil},
		{"bio too long", profileRequest{Bio: &long}, []string{`"bio" length must be less than or equal to 500 characters long`}},
		{"nothing set", profileRequest{}, []string{`"value" must have at least 1 key`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, details(t, tt.req.validate()))
		})
	}
}

func TestUpdateModelsRequest(t *testing.T) {
	assert.NoError(t, (&updateModelsRequest{Models: []string{}}).validate())
	assert.Equal(t, []string{`"models" is required`}, details(t, (&updateModelsRequest{}).validate()))
	assert.Equal(t, []string{`"models[1]" is not allowed to be empty`},
		details(t, (&updateModelsRequest{Models: []string{"a", ""}}).validate()))
}

func TestChatRequest(t *testing.T) {
	t.Run("timestamps", func(t *testing.T) {
		req := chatRequest{
			Provider: "openrouter",
			Model:    "meta-llama/llama-3-8b",
			Messages: []messageInput{
				{Role: "user", Content: "hi", Timestamp: "2026-03-04T05:06:07.123Z"},
				{Role: "assistant", Content: "hello"},
			},
		}
		before := time.Now()

		provider, msgs, err := req.validate()

		require.NoError(t, err)
		assert.Equal(t, core.ProviderOpenRouter, provider)
		require.Len(t, msgs, 2)
		assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 123_000_000, time.UTC), msgs[0].Timestamp)
		assert.False(t, msgs[1].Timestamp.Before(before.Truncate(time.Second)))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		req := chatRequest{
			Provider: "openai",
			Model:    "gpt-4o",
			Messages: []messageInput{{Role: "user", Content: "hi", Timestamp: "yesterday"}},
		}
		_, _, err := req.validate()
		assert.Equal(t, []string{`"messages[0].timestamp" must be a valid date`}, details(t, err))
	})

	t.Run("missing messages", func(t *testing.T) {
		req := chatRequest{Provider: "openai", Model: "gpt-4o"}
		_, _, err := req.validate()
		assert.Equal(t, []string{`"messages" is required`}, details(t, err))
	})

	t.Run("empty conversation", func(t *testing.T) {
		req := chatRequest{Provider: "google", Model: "gemini-pro", Messages: []messageInput{}}
		_, _, err := req.validate()
		assert.Equal(t, []string{`"messages" must contain at least 1 items`}, details(t, err))
	})
}

func TestSaveChatRequestTitleLength(t *testing.T) {
	req := saveChatRequest{
		Title:    strings.Repeat("t", 201),
		Provider: "google",
		Model:    "gemini-pro",
		Messages: []messageInput{{Role: "user", Content: "hi"}},
	}
	_, _, err := req.validate()
	assert.Equal(t, []string{`"title" length must be less than or equal to 200 characters long`}, details(t, err))

	req.Title = "ok"
	req.Messages = []messageInput{}
	_, _, err = req.validate()
	assert.Equal(t, []string{`"messages" must contain at least 1 items`}, details(t, err))
}

func TestAddKeyRequestPrefersAPIKey(t *testing.T) {
	req := addKeyRequest{Provider: "openai", APIKey: "new", EncryptedKey: "old"}
	p, err := req.validate()
	require.NoError(t, err)
	assert.Equal(t, core.ProviderOpenAI, p)
	assert.Equal(t, "new", req.APIKey)
}
