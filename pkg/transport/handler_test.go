package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/relay/pkg/api"
)

func TestQueryHandlerFuncAdapter(t *testing.T) {
	var received *api.QueryRequest

	fn := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		received = req
		return &api.QueryResponse{RequestID: "r1", Status: api.RequestStatusCompleted}, nil
	})

	var _ QueryHandler = fn

	resp, err := fn.Submit(context.Background(), &api.QueryRequest{Query: "defect rate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received == nil || received.Query != "defect rate" {
		t.Errorf("received = %+v", received)
	}
	if resp.RequestID != "r1" {
		t.Errorf("RequestID = %q, want %q", resp.RequestID, "r1")
	}
}

func TestQueryHandlerFuncReturnsError(t *testing.T) {
	fn := QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		return nil, api.NewInvalidRequestError("query", "query is required")
	})

	_, err := fn.Submit(context.Background(), &api.QueryRequest{})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("type = %q, want %q", apiErr.Type, api.ErrorTypeInvalidRequest)
	}
}
