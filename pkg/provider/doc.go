// Package provider defines the interface relay uses to talk to LLM
// inference backends. The planner, the reporter and the agent runtime all
// depend on Provider only; each adapter (openaicompat, langchain) handles its
// own backend protocol internally.
package provider
