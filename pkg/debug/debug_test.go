package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "executor", map[string]bool{"executor": true}},
		{"multiple", "executor,planner", map[string]bool{"executor": true, "planner": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " executor , planner ", map[string]bool{"executor": true, "planner": true}},
		{"uppercase normalized", "EXECUTOR,Planner", map[string]bool{"executor": true, "planner": true}},
		{"empty segments", "executor,,planner", map[string]bool{"executor": true, "planner": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("executor,storage")
	if !Enabled("executor") || !Enabled("storage") {
		t.Error("executor and storage should be enabled")
	}
	if Enabled("mcp") {
		t.Error("mcp should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled("anything") {
		t.Error("all should enable every category")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer", 7, "this is..."},
		{"héllo", 2, "h..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}

func TestInitJSONAndTrace(t *testing.T) {
	t.Setenv(EnvCategories, "")
	t.Setenv(EnvLevel, "")
	t.Setenv(EnvFormat, "")
	orig := slog.Default()
	origCats := categories
	defer func() {
		slog.SetDefault(orig)
		categories = origCats
	}()

	var buf bytes.Buffer
	Init(Options{Categories: "executor", Level: "TRACE", Format: "json", Output: &buf})

	Trace("executor", "payload", "size", 3)
	Log("planner", "should not appear")

	out := buf.String()
	if !strings.Contains(out, `"level":"TRACE"`) {
		t.Errorf("trace record missing TRACE level: %s", out)
	}
	if !strings.Contains(out, `"debug":"executor"`) {
		t.Errorf("trace record missing category: %s", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("disabled category was logged: %s", out)
	}
}

func TestInitEnvOverridesConfig(t *testing.T) {
	t.Setenv(EnvCategories, "storage")
	origCats := categories
	orig := slog.Default()
	defer func() {
		categories = origCats
		slog.SetDefault(orig)
	}()

	Init(Options{Categories: "executor", Output: &bytes.Buffer{}})
	got := Categories()
	if len(got) != 1 || got[0] != "storage" {
		t.Errorf("Categories() = %v, want [storage]", got)
	}
}
