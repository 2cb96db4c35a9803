// Package tools defines the capability registry of the agent runtime.
//
// A Capability is a tagged variant: its Kind says which backend serves it
// (relational query, vector search or an MCP server tool) and the matching
// backend field holds the implementation. The Registry dispatches a model's
// tool call with an exhaustive switch over the kinds, so adding a kind means
// adding a case rather than another string comparison.
//
// Backend failures never escape as Go errors from Invoke. They come back as
// a Result with IsError set, and the model sees the error text as the tool
// output, the same way a successful result would be fed back.
package tools
