package server

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"keyring/internal/agent"
	"keyring/internal/core"
)

// validator collects field rule failures so a client sees all of them at once.
type validator struct {
	details []string
}

func (v *validator) fail(format string, args ...any) {
	v.details = append(v.details, fmt.Sprintf(format, args...))
}

// required reports whether value is present and records a failure if not.
func (v *validator) required(field, value string) bool {
	if value == "" {
		v.fail("%q is required", field)
		return false
	}
	return true
}

func (v *validator) length(field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	if minLen > 0 && n < minLen {
		v.fail("%q length must be at least %d characters long", field, minLen)
	}
	if maxLen > 0 && n > maxLen {
		v.fail("%q length must be less than or equal to %d characters long", field, maxLen)
	}
}

func (v *validator) email(field, value string) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
		v.fail("%q must be a valid email", field)
	}
}

func (v *validator) uri(field, value string) {
	u, err := url.ParseRequestURI(value)
	if err != nil || u.Scheme == "" {
		v.fail("%q must be a valid uri", field)
	}
}

func (v *validator) oneOf(field, value string, allowed []string) bool {
	if !slices.Contains(allowed, value) {
		v.fail("%q must be one of [%s]", field, strings.Join(allowed, ", "))
		return false
	}
	return true
}

func (v *validator) provider(value string) core.Provider {
	names := make([]string, 0, 4)
	for _, p := range core.Providers() {
		names = append(names, string(p))
	}
	if v.required("provider", value) && v.oneOf("provider", value, names) {
		return core.Provider(value)
	}
	return ""
}

func (v *validator) err() error {
	if len(v.details) == 0 {
		return nil
	}
	return core.NewValidationError(v.details)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r *registerRequest) validate() error {
	var v validator
	r.Email = strings.TrimSpace(r.Email)
	if v.required("email", r.Email) {
		v.email("email", r.Email)
	}
	if v.required("password", r.Password) {
		v.length("password", r.Password, 8, 0)
	}
	if v.required("name", r.Name) {
		v.length("name", r.Name, 2, 50)
	}
	return v.err()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) validate() error {
	var v validator
	r.Email = strings.TrimSpace(r.Email)
	if v.required("email", r.Email) {
		v.email("email", r.Email)
	}
	v.required("password", r.Password)
	return v.err()
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profileRequest struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

func (r *profileRequest) validate() error {
	var v validator
	if r.Name == nil && r.Bio == nil && r.AvatarURL == nil {
		v.fail("%q must have at least 1 key", "value")
	}
	if r.Name != nil {
		v.length("name", *r.Name, 2, 50)
	}
	if r.Bio != nil {
		v.length("bio", *r.Bio, 0, 500)
	}
	if r.AvatarURL != nil {
		v.uri("avatarUrl", *r.AvatarURL)
	}
	return v.err()
}

type addKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	// EncryptedKey is the field name older clients send.
	EncryptedKey string `json:"encryptedKey"`
}

func (r *addKeyRequest) validate() (core.Provider, error) {
	var v validator
	p := v.provider(r.Provider)
	if r.APIKey == "" {
		r.APIKey = r.EncryptedKey
	}
	v.required("apiKey", r.APIKey)
	return p, v.err()
}

type validateKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

func (r *validateKeyRequest) validate() (core.Provider, error) {
	var v validator
	p := v.provider(r.Provider)
	v.required("apiKey", r.APIKey)
	return p, v.err()
}

type updateModelsRequest struct {
	Models []string `json:"models"`
}

func (r *updateModelsRequest) validate() error {
	var v validator
	if r.Models == nil {
		v.fail("%q is required", "models")
	}
	for i, m := range r.Models {
		if m == "" {
			v.fail("\"models[%d]\" is not allowed to be empty", i)
		}
	}
	return v.err()
}

type messageInput struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
}

var roleNames = []string{string(core.RoleUser), string(core.RoleAssistant), string(core.RoleSystem)}

func validateMessages(v *validator, msgs []messageInput) []core.Message {
	switch {
	case msgs == nil:
		v.fail("%q is required", "messages")
	case len(msgs) == 0:
		v.fail("%q must contain at least 1 items", "messages")
	}
	out := make([]core.Message, 0, len(msgs))
	for i, m := range msgs {
		field := fmt.Sprintf("messages[%d]", i)
		if v.required(field+".role", m.Role) {
			v.oneOf(field+".role", m.Role, roleNames)
		}
		v.required(field+".content", m.Content)

		msg := core.Message{ID: m.ID, Role: core.Role(m.Role), Content: m.Content, Model: m.Model}
		if m.Timestamp != "" {
			ts, err := parseTimestamp(m.Timestamp)
			if err != nil {
				v.fail("%q must be a valid date", field+".timestamp")
			}
			msg.Timestamp = ts
		} else {
			msg.Timestamp = time.Now().UTC()
		}
		out = append(out, msg)
	}
	return out
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type chatRequest struct {
	Messages  []messageInput `json:"messages"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	UseMemory bool           `json:"useMemory"`
	Stream    bool           `json:"stream"`
}

func (r *chatRequest) validate() (core.Provider, []core.Message, error) {
	var v validator
	msgs := validateMessages(&v, r.Messages)
	p := v.provider(r.Provider)
	v.required("model", r.Model)
	return p, msgs, v.err()
}

type saveChatRequest struct {
	Title    string         `json:"title"`
	Messages []messageInput `json:"messages"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
}

func (r *saveChatRequest) validate() (core.Provider, []core.Message, error) {
	var v validator
	msgs := validateMessages(&v, r.Messages)
	p := v.provider(r.Provider)
	v.required("model", r.Model)
	v.length("title", r.Title, 0, 200)
	return p, msgs, v.err()
}

type memoryRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r *memoryRequest) validate() error {
	var v validator
	if v.required("key", r.Key) {
		v.length("key", r.Key, 1, 100)
	}
	if v.required("value", r.Value) {
		v.length("value", r.Value, 0, 10240)
	}
	return v.err()
}

type agentRequest struct {
	Tool     string `json:"tool"`
	Input    string `json:"input"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (r *agentRequest) validate() (agent.Tool, core.Provider, error) {
	var v validator
	var tool agent.Tool
	if v.required("tool", r.Tool) {
		names := make([]string, 0, 5)
		for _, t := range agent.Tools() {
			names = append(names, string(t))
		}
		if v.oneOf("tool", r.Tool, names) {
			tool = agent.Tool(r.Tool)
		}
	}
	v.required("input", r.Input)
	p := v.provider(r.Provider)
	v.required("model", r.Model)
	return tool, p, v.err()
}
