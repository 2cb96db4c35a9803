package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"", "openaicompat", false},
		{"openaicompat", "openaicompat", false},
		{"langchain", "langchain", false},
		{"bedrock", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := New(config.LLMConfig{
				Provider: tt.provider,
				BaseURL:  "http://127.0.0.1:9/v1",
				Model:    "m",
				Timeout:  time.Second,
			})
			if tt.wantErr {
				if !errors.Is(err, config.ErrConfig) {
					t.Errorf("err = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer p.Close()
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}
