package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/tools"
)

// ErrTurnLimit is returned when the model keeps calling tools past the
// configured number of turns.
var ErrTurnLimit = errors.New("agent stopped after reaching the turn limit")

const defaultMaxTurns = 10

// Runner produces an answer for one task input.
type Runner interface {
	Run(ctx context.Context, input string) (string, error)
}

// BrainConfig configures a Brain.
type BrainConfig struct {
	Model        string
	SystemPrompt string
	Temperature  *float64

	// MaxTurns bounds the number of model calls in the tool loop.
	// Zero defaults to 10.
	MaxTurns int

	Guardrails Guardrails
}

// Brain answers tasks with a language model. With capabilities it runs a
// tool-calling loop over them; without, it does a single completion.
type Brain struct {
	prov   provider.Provider
	caps   *tools.Registry
	cfg    BrainConfig
	logger *slog.Logger
}

var _ Runner = (*Brain)(nil)

// NewBrain creates a Brain. caps may be nil.
func NewBrain(prov provider.Provider, caps *tools.Registry, cfg BrainConfig) *Brain {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if caps == nil {
		caps = tools.NewRegistry()
	}
	return &Brain{prov: prov, caps: caps, cfg: cfg, logger: slog.Default()}
}

// Run answers input and applies the guardrails to the answer.
func (b *Brain) Run(ctx context.Context, input string) (string, error) {
	var (
		out string
		err error
	)
	if b.caps.Len() == 0 {
		out, err = b.complete(ctx, input)
	} else {
		out, err = b.loop(ctx, input)
		if err != nil && !errors.Is(err, ErrTurnLimit) && ctx.Err() == nil {
			// Tool loop failed; answer without tools.
			b.logger.Warn("tool loop failed, falling back to plain completion", "error", err)
			out, err = b.complete(ctx, input)
		}
	}
	if err != nil {
		return "", err
	}
	return b.cfg.Guardrails.Apply(out), nil
}

func (b *Brain) messages(input string) []provider.Message {
	var msgs []provider.Message
	if b.cfg.SystemPrompt != "" {
		msgs = append(msgs, provider.SystemMessage(b.cfg.SystemPrompt))
	}
	return append(msgs, provider.UserMessage(input))
}

func (b *Brain) complete(ctx context.Context, input string) (string, error) {
	resp, err := b.prov.Complete(ctx, &provider.Request{
		Model:       b.cfg.Model,
		Messages:    b.messages(input),
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (b *Brain) loop(ctx context.Context, input string) (string, error) {
	req := &provider.Request{
		Model:       b.cfg.Model,
		Messages:    b.messages(input),
		Tools:       b.caps.Tools(),
		Temperature: b.cfg.Temperature,
	}

	for turn := 0; turn < b.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := b.prov.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("completion failed on turn %d: %w", turn+1, err)
		}

		if len(resp.ToolCalls) == 0 {
			return strings.TrimSpace(resp.Content), nil
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		debug.Log("agents", "model requested capabilities", "turn", turn+1, "calls", len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res := b.caps.Invoke(ctx, tools.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
			req.Messages = append(req.Messages, provider.ToolResultMessage(call, res.Output))
		}
	}
	return "", fmt.Errorf("%w (%d)", ErrTurnLimit, b.cfg.MaxTurns)
}
