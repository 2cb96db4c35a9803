package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	gohttp "net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/transport"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return bytes.NewReader(data)
}

func startServer(t *testing.T, srv *Server) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	return ln.Addr().String(), func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	}
}

func TestServerStartsAndAcceptsQueries(t *testing.T) {
	queries := transport.QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		return &api.QueryResponse{RequestID: testID, Status: api.RequestStatusCompleted, FinalAnswer: api.StringPtr("42")}, nil
	})

	srv := NewServer(queries, nil, WithAddr("127.0.0.1:0"))
	addr, stop := startServer(t, srv)
	defer stop()

	resp, err := gohttp.Post("http://"+addr+"/query", "application/json", jsonBody(t, api.QueryRequest{Query: "q"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID response header")
	}

	var got api.QueryResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.RequestID != testID {
		t.Errorf("request_id = %q, want %q", got.RequestID, testID)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	slow := transport.QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
		time.Sleep(200 * time.Millisecond)
		return &api.QueryResponse{RequestID: testID, Status: api.RequestStatusCompleted}, nil
	})

	srv := NewServer(slow, nil, WithShutdownTimeout(5*time.Second))
	addr, stop := startServer(t, srv)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/query", "application/json", jsonBody(t, api.QueryRequest{Query: "q"}))
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	stop()

	if status := <-responseCh; status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
}

type countingDrainer struct {
	calls atomic.Int32
}

func (d *countingDrainer) Wait(ctx context.Context) error {
	d.calls.Add(1)
	return nil
}

func TestServerShutdownWaitsForDrainer(t *testing.T) {
	d := &countingDrainer{}
	srv := NewServer(transport.QueryHandlerFunc(nil), nil, WithDrainer(d))
	_, stop := startServer(t, srv)
	stop()

	if d.calls.Load() != 1 {
		t.Errorf("drainer calls = %d, want 1", d.calls.Load())
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(transport.QueryHandlerFunc(nil), nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
		WithTimeouts(5*time.Second, time.Minute),
		WithMetricsPath(""),
		WithCORSOrigins(nil),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.httpServer.ReadTimeout != 5*time.Second || srv.httpServer.WriteTimeout != time.Minute {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.adapter.config.MetricsPath != "" {
		t.Errorf("metrics path = %q, want empty", srv.adapter.config.MetricsPath)
	}
}
