package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
)

const embeddingDims = 8

func newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("POST /v1/embeddings", handleEmbeddings)
	mux.HandleFunc("POST /invoke", handleInvoke)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "agent": "mock"})
	})
	return mux
}

// --- Chat Completions wire types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handlers ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	resp := classifyAndRespond(&req)
	resp.Model = req.Model
	if resp.Model == "" {
		resp.Model = "mock-model"
	}
	writeJSON(w, resp)
}

// classifyAndRespond recognizes the planner and reporter prompts; anything
// else is treated as an agent turn.
func classifyAndRespond(req *chatRequest) chatResponse {
	system := messageContent(req, "system")
	user := lastContent(req, "user")

	switch {
	case strings.HasPrefix(system, "You are a planner."):
		return makeTextResponse(planFor(system, user))
	case strings.HasPrefix(user, "You are a reporter."):
		return makeTextResponse(reportFor(user))
	case len(req.Tools) > 0:
		if last := req.Messages[len(req.Messages)-1]; last.Role == "tool" {
			return makeTextResponse("Based on the data: " + firstLine(last.Content))
		}
		args, _ := json.Marshal(map[string]string{"query": user})
		return toolCallResponse(req.Tools[0].Function.Name, string(args))
	default:
		return makeTextResponse("Mock answer: " + firstLine(user))
	}
}

// planFor assigns the query to every agent listed in the planner prompt,
// in roster order.
func planFor(system, query string) string {
	var plan api.Plan
	inRoster := false
	for _, line := range strings.Split(system, "\n") {
		switch {
		case strings.HasPrefix(line, "Available agents:"):
			inRoster = true
		case inRoster && strings.HasPrefix(line, "- "):
			name, _, _ := strings.Cut(strings.TrimPrefix(line, "- "), ":")
			plan.Steps = append(plan.Steps, api.Step{
				StepIndex:       len(plan.Steps) + 1,
				AgentName:       strings.TrimSpace(name),
				TaskDescription: fmt.Sprintf("%s: %s", strings.TrimSpace(name), query),
			})
		case inRoster:
			inRoster = false
		}
	}
	data, _ := json.Marshal(plan)
	return string(data)
}

// reportFor summarizes the "Step results" block of the reporter prompt.
func reportFor(prompt string) string {
	_, results, ok := strings.Cut(prompt, "Step results:\n")
	if !ok {
		return "No results."
	}
	results, _, _ = strings.Cut(results, "\n\nWrite the final answer")
	var lines []string
	for _, l := range strings.Split(results, "\n") {
		if strings.HasPrefix(l, "Step ") {
			lines = append(lines, l)
		}
	}
	return fmt.Sprintf("Report over %d steps. %s", len(lines), strings.Join(lines, " "))
}

func toolCallResponse(name, arguments string) chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-tool",
		Object: "chat.completion",
		Choices: []chatChoice{{
			Message: chatMsg{
				Role: "assistant",
				ToolCalls: []toolCall{{
					ID:       "call_mock_1",
					Type:     "function",
					Function: funcCall{Name: name, Arguments: arguments},
				}},
			},
			FinishReason: "tool_calls",
		}},
		Usage: chatUsage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
	}
}

func makeTextResponse(text string) chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-text",
		Object: "chat.completion",
		Choices: []chatChoice{{
			Message:      chatMsg{Role: "assistant", Content: &text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}
	type datum struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]datum, len(req.Input))
	for i, text := range req.Input {
		data[i] = datum{Index: i, Embedding: embed(text)}
	}
	writeJSON(w, map[string]any{"object": "list", "data": data})
}

// embed hashes text into a fixed vector so equal texts embed equally.
func embed(text string) []float32 {
	v := make([]float32, embeddingDims)
	for i := range v {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		v[i] = float32(h.Sum32()%1000) / 1000
	}
	return v
}

func handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req api.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}
	result, _ := json.Marshal("Mock result for: " + req.Task)
	latency := time.Since(start).Milliseconds()
	writeJSON(w, api.InvokeResponse{Result: result, Status: "success", LatencyMs: &latency})
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "relay-mock"},
		},
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func messageContent(req *chatRequest, role string) string {
	for _, m := range req.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return ""
}

func lastContent(req *chatRequest, role string) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == role {
			return req.Messages[i].Content
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
