// Command relayctl submits queries to relay and shows their traces.
//
//	relayctl [--url URL] query [--domain ID] [--async] "<question>"
//	relayctl [--url URL] trace <request-id>
//	relayctl [--url URL] last [--domain ID]
//	relayctl [--url URL] list [--domain ID] [--status S] [--limit N] [--after ID]
//
// The URL defaults to RELAY_URL or http://127.0.0.1:8080 (the gateway).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

const usage = `usage: relayctl [--url URL] <command> [flags] [args]

commands:
  query "<question>"   submit a query and show its trace
  trace <request-id>   show a request's trace
  last                 show the most recent trace
  list                 list recent requests
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "relayctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("relayctl", flag.ContinueOnError)
	baseURL := global.String("url", envOr("RELAY_URL", "http://127.0.0.1:8080"), "gateway or orchestrator URL")
	timeout := global.Duration("timeout", 15*time.Minute, "request timeout")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := newClient(*baseURL, nil)
	cmd, rest := global.Arg(0), global.Args()[1:]

	switch cmd {
	case "query":
		return runQuery(ctx, c, rest, out)
	case "trace":
		if len(rest) != 1 {
			return errors.New("trace takes exactly one request id")
		}
		t, err := c.trace(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderTrace(t))
		return nil
	case "last":
		fs := flag.NewFlagSet("last", flag.ContinueOnError)
		domain := fs.String("domain", "", "restrict to one domain")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		t, err := c.last(ctx, *domain)
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderTrace(t))
		return nil
	case "list":
		return runList(ctx, c, rest, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runQuery(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	domain := fs.String("domain", "", "domain id")
	session := fs.String("session", "", "session id")
	async := fs.Bool("async", false, "return immediately with the request id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return errors.New("query text is required")
	}

	resp, err := c.query(ctx, &api.QueryRequest{Query: text, DomainID: *domain, SessionID: *session, Async: *async})
	if err != nil {
		return err
	}
	if *async {
		fmt.Fprintf(out, "%s %s\n", resp.RequestID, styleForStatus(string(resp.Status)).Render(string(resp.Status)))
		return nil
	}

	t, err := c.trace(ctx, resp.RequestID)
	if err != nil {
		// The query ran; show what the submit call returned.
		fmt.Fprintf(out, "%s %s\n", resp.RequestID, resp.Status)
		if resp.FinalAnswer != nil {
			fmt.Fprintln(out, *resp.FinalAnswer)
		}
		return fmt.Errorf("fetching trace: %w", err)
	}
	fmt.Fprint(out, renderTrace(t))
	return nil
}

func runList(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	domain := fs.String("domain", "", "restrict to one domain")
	status := fs.String("status", "", "running, completed, failed or partial")
	limit := fs.Int("limit", 0, "page size (default 20)")
	after := fs.String("after", "", "continue after this request id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := c.list(ctx, orchestrator.ListOptions{
		DomainID: *domain,
		Status:   api.RequestStatus(*status),
		Limit:    *limit,
		After:    *after,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(out, renderList(l))
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
