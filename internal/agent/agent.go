// Package agent runs single-shot "tool" prompts through the chat adapter.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"keyring/internal/core"
)

// Tool selects the prompt template used for a run.
type Tool string

const (
	ToolResearch  Tool = "research"
	ToolMath      Tool = "math"
	ToolCode      Tool = "code"
	ToolTask      Tool = "task"
	ToolSummarize Tool = "summarize"
)

// ErrUnknownTool is returned for a tool name outside the supported set.
var ErrUnknownTool = errors.New("unknown tool")

// Tools lists the supported tools.
func Tools() []Tool {
	return []Tool{ToolResearch, ToolMath, ToolCode, ToolTask, ToolSummarize}
}

// ParseTool validates a tool name.
func ParseTool(s string) (Tool, error) {
	t := Tool(s)
	if _, ok := prompts[t]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, s)
	}
	return t, nil
}

type template struct {
	system     string
	userPrefix string
}

var prompts = map[Tool]template{
	ToolResearch: {
		system:     "You are a research agent. Your task is to provide comprehensive, well-researched answers based on your knowledge. Break down complex topics into digestible sections. Always cite reasoning steps.",
		userPrefix: "Research and provide a comprehensive answer about: ",
	},
	ToolMath: {
		system:     "You are a math solver agent. Solve mathematical problems step-by-step, showing your work clearly. Explain each step and provide the final answer.",
		userPrefix: "Solve this math problem step by step: ",
	},
	ToolCode: {
		system:     "You are a code assistant agent. You can generate, explain, and debug code. Provide clear, well-commented code with explanations.",
		userPrefix: "Code assistance request: ",
	},
	ToolTask: {
		system:     "You are a task automation agent. Break down complex tasks into clear, actionable steps. Provide a structured plan with numbered steps.",
		userPrefix: "Create a task plan for: ",
	},
	ToolSummarize: {
		system:     "You are a summarization agent. Condense long texts into concise summaries, preserving key information and main ideas.",
		userPrefix: "Summarize the following: ",
	},
}

// BuildMessages returns the system and user turns for a tool run.
func BuildMessages(tool Tool, input string) ([]core.Message, error) {
	tpl, ok := prompts[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	now := time.Now()
	return []core.Message{
		{ID: "system", Role: core.RoleSystem, Content: tpl.system, Timestamp: now},
		{ID: "user", Role: core.RoleUser, Content: tpl.userPrefix + input, Timestamp: now},
	}, nil
}

// Step is one extracted step of an agent answer.
type Step struct {
	Action string `json:"action"`
	Result string `json:"result"`
}

// Result is the response of a tool run.
type Result struct {
	Result string `json:"result"`
	Steps  []Step `json:"steps,omitempty"`
}

// stepMarker matches "Step N" anywhere and "N." at the start of a line.
var stepMarker = regexp.MustCompile(`(?m)Step \d+|^\d+\.`)

// ExtractSteps splits content at step markers. Each step runs from its marker
// to the next one. Fewer than two markers yields no steps.
func ExtractSteps(content string) []Step {
	locs := stepMarker.FindAllStringIndex(content, -1)
	if len(locs) < 2 {
		return nil
	}

	steps := make([]Step, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		steps = append(steps, Step{
			Action: fmt.Sprintf("Step %d", i+1),
			Result: strings.TrimSpace(content[loc[0]:end]),
		})
	}
	return steps
}

// Runner executes tool prompts.
type Runner struct {
	adapter core.ChatAdapter
}

// NewRunner creates a Runner over adapter.
func NewRunner(adapter core.ChatAdapter) *Runner {
	return &Runner{adapter: adapter}
}

// Execute runs tool against input with the caller's credential. The raw chat
// response is returned alongside so callers can account for usage.
func (r *Runner) Execute(ctx context.Context, provider core.Provider, credential, model string, tool Tool, input string) (*Result, *core.ChatResponse, error) {
	messages, err := BuildMessages(tool, input)
	if err != nil {
		return nil, nil, err
	}

	resp, err := r.adapter.Chat(ctx, provider, credential, model, messages)
	if err != nil {
		return nil, nil, err
	}

	return &Result{
		Result: resp.Message.Content,
		Steps:  ExtractSteps(resp.Message.Content),
	}, resp, nil
}
