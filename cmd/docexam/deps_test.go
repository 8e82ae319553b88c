package main

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/docexam/internal/llm"
)

func TestParseEndpoints(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []llm.Endpoint
		wantErr bool
	}{
		{"with limits", []string{"a=15 RPM", " b = 30 RPM "}, []llm.Endpoint{{Name: "a", Limit: "15 RPM"}, {Name: "b", Limit: "30 RPM"}}, false},
		{"without limit", []string{"a"}, []llm.Endpoint{{Name: "a", Limit: "unknown limit"}}, false},
		{"empty name", []string{"=15 RPM"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEndpoints(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d endpoints, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("endpoint %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDefaultEndpointFlagsRoundTrip(t *testing.T) {
	got, err := parseEndpoints(endpointFlags(llm.DefaultStandard))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(llm.DefaultStandard) {
		t.Fatalf("got %d endpoints, want %d", len(got), len(llm.DefaultStandard))
	}
	for i, ep := range llm.DefaultStandard {
		if got[i] != ep {
			t.Errorf("endpoint %d = %+v, want %+v", i, got[i], ep)
		}
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	v := viper.New()
	if _, err := apiKey(v); err == nil {
		t.Error("expected error without any key")
	}

	t.Setenv("GOOGLE_API_KEY", "google")
	if k, _ := apiKey(v); k != "google" {
		t.Errorf("key = %q, want google", k)
	}

	t.Setenv("GEMINI_API_KEY", "gemini")
	if k, _ := apiKey(v); k != "gemini" {
		t.Errorf("key = %q, want gemini", k)
	}

	v.Set("llm-key", "flag")
	if k, _ := apiKey(v); k != "flag" {
		t.Errorf("key = %q, want flag", k)
	}
}

func TestEngineAttrs(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.Flags().Set("premium-models", "gemini-2.5-pro=2 RPM"); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		t.Fatal(err)
	}

	attrs := engineAttrs(v)
	if len(attrs)%2 != 0 {
		t.Fatalf("attrs has odd length %d", len(attrs))
	}
	got := map[string]any{}
	for i := 0; i < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}

	premium, ok := got["premium_models"].([]string)
	if !ok || len(premium) != 1 || premium[0] != "gemini-2.5-pro=2 RPM" {
		t.Errorf("premium_models = %v, want [gemini-2.5-pro=2 RPM]", got["premium_models"])
	}
	standard, ok := got["standard_models"].([]string)
	if !ok || len(standard) != len(llm.DefaultStandard) {
		t.Errorf("standard_models = %v, want the default chain", got["standard_models"])
	}
	if got["vector_store"] != "memory" {
		t.Errorf("vector_store = %v, want memory", got["vector_store"])
	}
}
