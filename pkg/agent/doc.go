// Package agent is the worker agent runtime. One process serves one agent
// from the domain roster: it accepts tasks on POST /invoke, runs them
// through a Brain (a language model with the agent's capabilities as
// tools), applies the agent's guardrails and reports the outcome in the
// invoke protocol the orchestrator's executor speaks.
package agent
