package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/relay/pkg/api"
)

// Logging returns middleware that emits one structured log entry per query
// with the correlation ID, request ID, terminal status and duration.
// HTTP status codes are recorded by the metrics middleware instead.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
			start := time.Now()

			resp, err := next.Submit(ctx, req)

			attrs := []slog.Attr{
				slog.String("correlation_id", CorrelationIDFromContext(ctx)),
				slog.String("domain_id", req.DomainID),
				slog.Bool("async", req.Async),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "query rejected", attrs...)
				return resp, err
			}

			attrs = append(attrs,
				slog.String("request_id", resp.RequestID),
				slog.String("status", string(resp.Status)))
			level := slog.LevelInfo
			if resp.Status == api.RequestStatusFailed {
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "query handled", attrs...)
			return resp, nil
		})
	}
}
