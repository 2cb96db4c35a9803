package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rhuss/relay/pkg/api"
)

func okHandler(status api.RequestStatus) QueryHandler {
	return QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		return &api.QueryResponse{RequestID: "req-1", Status: status}, nil
	})
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next QueryHandler) QueryHandler {
			return QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
				order = append(order, name+":before")
				resp, err := next.Submit(ctx, req)
				order = append(order, name+":after")
				return resp, err
			})
		}
	}

	handler := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		order = append(order, "handler")
		return &api.QueryResponse{}, nil
	})

	Chain(mw("first"), mw("second"), mw("third"))(handler).Submit(context.Background(), &api.QueryRequest{})

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}
	if len(order) != len(expected) {
		t.Fatalf("execution order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		panic("test panic")
	})

	resp, err := Recovery()(handler).Submit(context.Background(), &api.QueryRequest{})
	if resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T: %v", err, err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("type = %q, want %q", apiErr.Type, api.ErrorTypeServerError)
	}
	if !strings.Contains(apiErr.Message, "test panic") {
		t.Errorf("message = %q, want panic text", apiErr.Message)
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	resp, err := Recovery()(okHandler(api.RequestStatusCompleted)).Submit(context.Background(), &api.QueryRequest{})
	if err != nil || resp.RequestID != "req-1" {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	var seen string
	handler := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		seen = CorrelationIDFromContext(ctx)
		return &api.QueryResponse{}, nil
	})

	CorrelationID()(handler).Submit(context.Background(), &api.QueryRequest{})
	if len(seen) != 36 {
		t.Errorf("generated correlation ID = %q, want a UUID", seen)
	}
}

func TestCorrelationIDPreserved(t *testing.T) {
	var seen string
	handler := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		seen = CorrelationIDFromContext(ctx)
		return &api.QueryResponse{}, nil
	})

	ctx := ContextWithCorrelationID(context.Background(), "client-abc")
	CorrelationID()(handler).Submit(ctx, &api.QueryRequest{})
	if seen != "client-abc" {
		t.Errorf("correlation ID = %q, want %q", seen, "client-abc")
	}
}

func TestCorrelationIDFromEmptyContext(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("CorrelationIDFromContext() = %q, want empty", got)
	}
}

func TestLoggingRecordsOutcome(t *testing.T) {
	tests := []struct {
		name      string
		handler   QueryHandler
		wantLevel string
		wantMsg   string
		wantAttr  string
	}{
		{"completed", okHandler(api.RequestStatusCompleted), "INFO", "query handled", "status=completed"},
		{"failed", okHandler(api.RequestStatusFailed), "WARN", "query handled", "status=failed"},
		{"rejected", QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
			return nil, api.NewInvalidRequestError("query", "query is required")
		}), "ERROR", "query rejected", "query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			ctx := ContextWithCorrelationID(context.Background(), "corr-1")

			Logging(logger)(tt.handler).Submit(ctx, &api.QueryRequest{Query: "q", DomainID: "manufacturing"})

			out := buf.String()
			for _, want := range []string{"level=" + tt.wantLevel, tt.wantMsg, tt.wantAttr, "correlation_id=corr-1", "domain_id=manufacturing"} {
				if !strings.Contains(out, want) {
					t.Errorf("log output missing %q: %s", want, out)
				}
			}
		})
	}
}
