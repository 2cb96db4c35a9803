// Package executor runs a plan's steps against the domain's agents.
//
// Steps execute strictly one after another in step-index order, because
// each step's context carries the outputs of the steps before it. A failed
// step never stops the plan: its failure text becomes part of the context
// for the remaining steps, and RunPlan always returns one result per step.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/agentrpc"
	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
)

// Run describes one plan execution.
type Run struct {
	RequestID string
	Query     string
	Plan      *api.Plan

	// OnResult, if set, is called with each result as soon as it is
	// produced, before the next step starts.
	OnResult func(api.StepResult)
}

// Executor dispatches plan steps through an agentrpc.Invoker.
type Executor struct {
	invoker agentrpc.Invoker
	roster  *Roster
}

// New creates an Executor.
func New(invoker agentrpc.Invoker, roster *Roster) *Executor {
	return &Executor{invoker: invoker, roster: roster}
}

// Roster returns the executor's roster.
func (e *Executor) Roster() *Roster { return e.roster }

// RunPlan executes every step of run.Plan and returns their results in
// step-index order.
func (e *Executor) RunPlan(ctx context.Context, run Run) []api.StepResult {
	steps := orderedSteps(run.Plan)
	results := make([]api.StepResult, 0, len(steps))
	acc := newContext(run.Query)

	for _, step := range steps {
		sr := e.runStep(ctx, run.RequestID, step, acc.String())
		results = append(results, sr)
		acc = fold(acc, sr)

		var latency *time.Duration
		if sr.LatencyMs != nil {
			d := time.Duration(*sr.LatencyMs) * time.Millisecond
			latency = &d
		}
		observability.RecordStep(sr.AgentName, string(sr.Status), latency)

		if run.OnResult != nil {
			run.OnResult(sr)
		}
	}
	return results
}

func (e *Executor) runStep(ctx context.Context, requestID string, step api.Step, stepContext string) api.StepResult {
	input := inputPayload(step, stepContext)

	agent, ok := e.roster.Lookup(step.AgentName)
	if !ok {
		slog.Warn("step skipped, agent not in roster",
			"request_id", requestID,
			"step_index", step.StepIndex,
			"agent", step.AgentName)
		return api.StepResult{
			StepIndex: step.StepIndex,
			AgentName: step.AgentName,
			Input:     input,
			Output:    api.TextPayload(api.ErrAgentNotFound.Error()),
			Status:    api.StepStatusFailed,
		}
	}

	slog.Info("dispatching step",
		"request_id", requestID,
		"step_index", step.StepIndex,
		"agent", step.AgentName,
		"task", debug.Truncate(step.TaskDescription, 100))
	debug.Log("executor", "step context", "step_index", step.StepIndex, "context", debug.Truncate(stepContext, 500))

	out := e.invoker.Invoke(ctx, agent.BaseURL, api.InvokeRequest{
		Task:      step.TaskDescription,
		Context:   stepContext,
		RequestID: requestID,
	})
	sr := classify(step, input, out)

	slog.Info("step finished",
		"request_id", requestID,
		"step_index", sr.StepIndex,
		"agent", sr.AgentName,
		"status", sr.Status,
		"latency_ms", *sr.LatencyMs,
		"output", debug.Truncate(sr.OutputText(), 150))
	return sr
}

// classify maps an agent call outcome onto a step result.
func classify(step api.Step, input json.RawMessage, out agentrpc.Outcome) api.StepResult {
	latency := out.Latency.Milliseconds()
	sr := api.StepResult{
		StepIndex: step.StepIndex,
		AgentName: step.AgentName,
		Input:     input,
		LatencyMs: &latency,
	}

	switch out.Kind {
	case agentrpc.Success:
		sr.Status = api.StepStatusSuccess
		sr.Output = out.Result
	case agentrpc.RemoteReportedFailure:
		sr.Status = out.RemoteStatus
		sr.Output = out.Result
	case agentrpc.Timeout, agentrpc.TransportError:
		sr.Status = api.StepStatusFailed
		sr.Output = api.TextPayload(errorText(out))
	default:
		sr.Status = api.StepStatusFailed
		sr.Output = api.TextPayload(fmt.Sprintf("unknown agent outcome %s", out.Kind))
	}

	if len(sr.Output) == 0 {
		sr.Output = json.RawMessage("null")
	}
	return sr
}

func errorText(out agentrpc.Outcome) string {
	if out.Err == nil {
		return out.Kind.String()
	}
	return out.Err.Error()
}

// orderedSteps returns a copy of the plan's steps stably sorted by index.
func orderedSteps(plan *api.Plan) []api.Step {
	if plan == nil {
		return nil
	}
	steps := append([]api.Step(nil), plan.Steps...)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepIndex < steps[j].StepIndex
	})
	return steps
}

func inputPayload(step api.Step, stepContext string) json.RawMessage {
	data, _ := json.Marshal(api.StepInput{Task: step.TaskDescription, Context: stepContext})
	return data
}

// stepContext is the accumulated context handed to each agent: the original
// query followed by one line per processed step.
type stepContext struct {
	lines []string
}

func newContext(query string) stepContext {
	return stepContext{lines: []string{"Original query: " + query}}
}

// fold appends a step's outcome, successful or not, to the context.
func fold(c stepContext, sr api.StepResult) stepContext {
	lines := make([]string, len(c.lines), len(c.lines)+1)
	copy(lines, c.lines)
	lines = append(lines, fmt.Sprintf("Step %d (%s): %s", sr.StepIndex, sr.AgentName, sr.OutputText()))
	return stepContext{lines: lines}
}

func (c stepContext) String() string {
	return strings.Join(c.lines, "\n")
}
