// Package planner turns a natural-language query into an api.Plan that
// assigns ordered steps to the agents of a domain roster.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
)

// Planner produces a plan for a query. The roster lists the agent names the
// plan may use. Implementations do not need to validate the plan; the
// orchestrator checks it against the roster before persisting it.
type Planner interface {
	Generate(ctx context.Context, query string, roster []string) (*api.Plan, error)
}

// Func adapts an ordinary function to the Planner interface.
type Func func(ctx context.Context, query string, roster []string) (*api.Plan, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, query string, roster []string) (*api.Plan, error) {
	return f(ctx, query, roster)
}

const systemPrompt = `You are a planner. Given a user query and a list of available agents, output a JSON plan.
Available agents:
%s
Output only valid JSON with this exact structure (no markdown, no explanation):
{"steps": [{"step_index": 1, "agent_name": "<name>", "task_description": "<what to do>"}, ...]}
Use only agent names from the list. Order steps logically.`

// LLMPlanner asks a language model for the plan.
type LLMPlanner struct {
	Provider    provider.Provider
	Model       string
	Temperature float64

	// Descriptions optionally adds a one-line description per agent name
	// to the prompt.
	Descriptions map[string]string
}

// Generate prompts the model with the roster and parses its answer.
func (p *LLMPlanner) Generate(ctx context.Context, query string, roster []string) (*api.Plan, error) {
	temp := p.Temperature
	text, err := provider.Prompt(ctx, p.Provider, p.Model, fmt.Sprintf(systemPrompt, p.rosterLines(roster)), query, &temp)
	if err != nil {
		return nil, fmt.Errorf("planner completion: %w", err)
	}

	debug.Log("planner", "raw plan", "text", debug.Truncate(text, 500))

	return ParsePlan(text)
}

func (p *LLMPlanner) rosterLines(roster []string) string {
	var b strings.Builder
	for _, name := range roster {
		b.WriteString("- ")
		b.WriteString(name)
		if d := p.Descriptions[name]; d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParsePlan decodes a model answer into a Plan. Markdown code fences and
// text around the outermost JSON object are ignored. Every failure wraps
// api.ErrPlanInvalid.
func ParsePlan(text string) (*api.Plan, error) {
	body := stripFences(text)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in planner output", api.ErrPlanInvalid)
	}

	var plan api.Plan
	if err := json.Unmarshal([]byte(body[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("%w: decoding planner output: %v", api.ErrPlanInvalid, err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("%w: plan has no steps", api.ErrPlanInvalid)
	}
	return &plan, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON" or empty).
		text = text[nl+1:]
	}
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
