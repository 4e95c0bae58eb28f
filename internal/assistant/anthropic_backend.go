package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nlabs/stomper/internal/types"
)

// AnthropicBackend rewrites the target file in place by asking the
// model for its full replacement content, rather than shelling out to
// an external CLI. Useful where no interactive coding-assistant
// binary is installed on the host.
type AnthropicBackend struct {
	client        *anthropic.Client
	model         string
	retryAttempts int
}

// NewAnthropicBackend returns an AnthropicBackend using client and
// model.
func NewAnthropicBackend(client *anthropic.Client, model string) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model, retryAttempts: 3}
}

func (b *AnthropicBackend) Name() string { return "anthropic:" + b.model }

type rewriteResponse struct {
	Content string `json:"content"`
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

func (b *AnthropicBackend) Run(ctx context.Context, req Request) error {
	fullPath := filepath.Join(req.SandboxPath, req.File)
	original, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", types.ErrAssistantFailed, req.File, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := b.buildPrompt(req.File, string(original), req.Prompt)

	var resp *anthropic.Message
	lastErr := error(nil)
	for attempt := 1; attempt <= b.retryAttempts; attempt++ {
		resp, lastErr = b.client.Messages.New(callCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(b.model),
			MaxTokens: 8192,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if lastErr == nil {
			break
		}
		if callCtx.Err() != nil {
			return fmt.Errorf("%w: %v", types.ErrAssistantTimeout, callCtx.Err())
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", types.ErrAssistantFailed, lastErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	rewritten, err := parseRewriteResponse(text.String())
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrAssistantFailed, err)
	}

	if err := os.WriteFile(fullPath, []byte(rewritten.Content), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", types.ErrAssistantFailed, req.File, err)
	}
	return nil
}

func (b *AnthropicBackend) buildPrompt(file, content, instructions string) string {
	var p strings.Builder
	p.WriteString("You are an automated code-fixing assistant.\n\n")
	fmt.Fprintf(&p, "## File: %s\n\n```\n%s\n```\n\n", file, content)
	p.WriteString("## Instructions\n\n")
	p.WriteString(instructions)
	p.WriteString("\n\nRespond with JSON containing the full replacement file content:\n")
	p.WriteString("```json\n{\"content\": \"...\"}\n```\n")
	return p.String()
}

func parseRewriteResponse(text string) (*rewriteResponse, error) {
	candidate := text
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	var resp rewriteResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse rewrite response: %w", err)
	}
	return &resp, nil
}
