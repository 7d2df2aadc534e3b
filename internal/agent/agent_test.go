package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyring/internal/core"
)

type recordingAdapter struct {
	provider core.Provider
	model    string
	messages []core.Message
	reply    string
	err      error
}

func (a *recordingAdapter) Chat(ctx context.Context, provider core.Provider, credential, model string, messages []core.Message) (*core.ChatResponse, error) {
	a.provider, a.model, a.messages = provider, model, messages
	if a.err != nil {
		return nil, a.err
	}
	return &core.ChatResponse{Message: core.Message{Role: core.RoleAssistant, Content: a.reply}}, nil
}

func (a *recordingAdapter) ValidateKey(ctx context.Context, provider core.Provider, rawKey string) ([]string, error) {
	return nil, nil
}

func TestParseTool(t *testing.T) {
	for _, tool := range Tools() {
		got, err := ParseTool(string(tool))
		require.NoError(t, err)
		assert.Equal(t, tool, got)
	}

	_, err := ParseTool("translate")
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestBuildMessages(t *testing.T) {
	msgs, err := BuildMessages(ToolMath, "2+2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "math solver agent")
	assert.Equal(t, core.RoleUser, msgs[1].Role)
	assert.Equal(t, "Solve this math problem step by step: 2+2", msgs[1].Content)
}

func TestExtractSteps(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Step
	}{
		{
			name:    "no markers",
			content: "Just an answer.",
		},
		{
			name:    "single marker is not a list",
			content: "Step 1: do it all",
		},
		{
			name:    "step markers",
			content: "Intro\nStep 1: gather\nStep 2: mix\nStep 3: bake",
			want: []Step{
				{Action: "Step 1", Result: "Step 1: gather"},
				{Action: "Step 2", Result: "Step 2: mix"},
				{Action: "Step 3", Result: "Step 3: bake"},
			},
		},
		{
			name:    "numbered lines",
			content: "Plan:\n1. Outline\n2. Draft\n3. Edit",
			want: []Step{
				{Action: "Step 1", Result: "1. Outline"},
				{Action: "Step 2", Result: "2. Draft"},
				{Action: "Step 3", Result: "3. Edit"},
			},
		},
		{
			name:    "inline numbers are not markers",
			content: "Version 1.5 beats 2.0 on price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSteps(tt.content))
		})
	}
}

func TestRunner_Execute(t *testing.T) {
	adapter := &recordingAdapter{reply: "Step 1: a\nStep 2: b"}
	runner := NewRunner(adapter)

	result, resp, err := runner.Execute(context.Background(), core.ProviderOpenAI, "sk", "gpt-4o", ToolTask, "launch")
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, core.ProviderOpenAI, adapter.provider)
	assert.Equal(t, "gpt-4o", adapter.model)
	assert.Equal(t, "Create a task plan for: launch", adapter.messages[1].Content)
	assert.Equal(t, "Step 1: a\nStep 2: b", result.Result)
	assert.Len(t, result.Steps, 2)
}

func TestRunner_Execute_Errors(t *testing.T) {
	upstream := core.NewUpstreamHTTPError(core.ProviderOpenAI, 500, nil, nil)
	runner := NewRunner(&recordingAdapter{err: upstream})

	_, _, err := runner.Execute(context.Background(), core.ProviderOpenAI, "sk", "m", ToolCode, "x")
	assert.ErrorIs(t, err, upstream)

	_, _, err = runner.Execute(context.Background(), core.ProviderOpenAI, "sk", "m", "dance", "x")
	assert.ErrorIs(t, err, ErrUnknownTool)
}
