// Package reporter synthesizes the final answer of a request from its step
// results.
package reporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
)

// Reporter turns the step results of a request into the final answer.
// Results arrive in step order and include failed steps.
type Reporter interface {
	Synthesize(ctx context.Context, query string, results []api.StepResult) (string, error)
}

// Func adapts an ordinary function to the Reporter interface.
type Func func(ctx context.Context, query string, results []api.StepResult) (string, error)

// Synthesize calls f.
func (f Func) Synthesize(ctx context.Context, query string, results []api.StepResult) (string, error) {
	return f(ctx, query, results)
}

const prompt = `You are a reporter. Given the user query and the results from each step, write a clear, concise final answer or report.
Do not invent information. Use only the provided step results. If a step failed, say what could not be determined.

User query: %s

Step results:
%s

Write the final answer/report:`

// LLMReporter asks a language model to write the answer.
type LLMReporter struct {
	Provider    provider.Provider
	Model       string
	Temperature float64
}

// Synthesize prompts the model with the formatted results. An empty answer
// is an error wrapping api.ErrSynthesisFailed.
func (r *LLMReporter) Synthesize(ctx context.Context, query string, results []api.StepResult) (string, error) {
	temp := r.Temperature
	answer, err := provider.Prompt(ctx, r.Provider, r.Model, "", fmt.Sprintf(prompt, query, FormatResults(results)), &temp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", api.ErrSynthesisFailed, err)
	}
	if answer == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", api.ErrSynthesisFailed)
	}

	debug.Log("reporter", "synthesized answer", "answer", debug.Truncate(answer, 300))
	return answer, nil
}

// FormatResults renders results as "Step i (agent) [status]: output" blocks
// separated by blank lines.
func FormatResults(results []api.StepResult) string {
	parts := make([]string, 0, len(results))
	for _, sr := range results {
		parts = append(parts, fmt.Sprintf("Step %d (%s) [%s]: %s", sr.StepIndex, sr.AgentName, sr.Status, sr.OutputText()))
	}
	return strings.Join(parts, "\n\n")
}
