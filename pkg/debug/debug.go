// Package debug provides category-gated debug logging for relay.
//
// Categories select which subsystems emit debug output (RELAY_DEBUG or the
// logging.debug config key). The log level selects how much detail reaches
// the handler (RELAY_LOG_LEVEL or logging.level). The two are independent:
// a category only shows up when the level is DEBUG or lower.
//
//	debug.Log("executor", "dispatch", "agent", name, "url", url)
//	if debug.Enabled("planner") { /* build an expensive preview */ }
//
// Categories: planner, reporter, executor, agents, storage, providers,
// tools, mcp, gateway, transport, config, all.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"
)

// LevelTrace sits below slog.LevelDebug. At TRACE full payloads are logged.
const LevelTrace = slog.LevelDebug - 4

// Environment variables read by Init.
const (
	EnvCategories = "RELAY_DEBUG"
	EnvLevel      = "RELAY_LOG_LEVEL"
	EnvFormat     = "RELAY_LOG_FORMAT"
)

// categories is written by Init at startup and read-only afterwards.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv(EnvCategories))
}

// Options configures Init. Environment variables take precedence.
type Options struct {
	Categories string
	Level      string
	Format     string // "text" (default) or "json"
	Output     io.Writer
}

// Init installs the default slog handler and the enabled categories.
func Init(opts Options) {
	cats := firstNonEmpty(os.Getenv(EnvCategories), opts.Categories)
	categories = parseCategories(cats)

	level := ParseLevel(firstNonEmpty(os.Getenv(EnvLevel), opts.Level))
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level, ReplaceAttr: renameTrace}
	var h slog.Handler
	if strings.EqualFold(firstNonEmpty(os.Getenv(EnvFormat), opts.Format), "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug record tagged with the category. No-op when disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level record tagged with the category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the category.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes text to stderr without slog formatting, only at TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

// Truncate shortens s to at most maxLen bytes without splitting a rune,
// appending "..." when anything was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
