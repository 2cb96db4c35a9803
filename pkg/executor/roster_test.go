package executor

import (
	"testing"

	"github.com/rhuss/relay/pkg/config"
)

func TestRosterFromConfig(t *testing.T) {
	r := RosterFromConfig(config.DomainConfig{Agents: []config.AgentConfig{
		{Name: "data_agent", Port: 8101, Description: "queries the facts database"},
		{Name: "qa_agent", URL: "http://qa.internal:9000"},
	}}, "10.0.0.5")

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	names := r.Names()
	if names[0] != "data_agent" || names[1] != "qa_agent" {
		t.Errorf("Names() = %v", names)
	}

	tests := []struct {
		name    string
		wantURL string
		wantOK  bool
	}{
		{"data_agent", "http://10.0.0.5:8101", true},
		{"qa_agent", "http://qa.internal:9000", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		a, ok := r.Lookup(tt.name)
		if ok != tt.wantOK {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
		}
		if a.BaseURL != tt.wantURL {
			t.Errorf("Lookup(%q).BaseURL = %q, want %q", tt.name, a.BaseURL, tt.wantURL)
		}
	}

	desc := r.Descriptions()
	if len(desc) != 1 || desc["data_agent"] != "queries the facts database" {
		t.Errorf("Descriptions() = %v", desc)
	}
}

func TestNewRosterDuplicateReplaces(t *testing.T) {
	r := NewRoster(Agent{Name: "a", BaseURL: "http://one"}, Agent{Name: "a", BaseURL: "http://two"})
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if a, _ := r.Lookup("a"); a.BaseURL != "http://two" {
		t.Errorf("BaseURL = %q, want http://two", a.BaseURL)
	}
}
