package render

import (
	"errors"
	"testing"

	"github.com/poiesic/knowit/core"
)

func TestRender_Disabled(t *testing.T) {
	r := Disabled()
	if r.Enabled() {
		t.Fatal("Disabled renderer reports enabled")
	}

	text, metadata := r.Render("raw chunk text")
	if text != "raw chunk text" {
		t.Errorf("Expected pass-through text, got %q", text)
	}
	if len(metadata) != 1 || metadata["type"] != "text_chunk" {
		t.Errorf("Expected fixed type metadata, got %v", metadata)
	}
}

func TestRender_ChunkSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		template string
		chunk    string
		want     string
	}{
		{
			name:     "plain substitution",
			template: "Context: {{chunk}}",
			chunk:    "hello",
			want:     "Context: hello",
		},
		{
			name:     "inner whitespace tolerated",
			template: "{{ chunk }} end",
			chunk:    "hello",
			want:     "hello end",
		},
		{
			name:     "multiple occurrences",
			template: "{{chunk}} | {{chunk}}",
			chunk:    "x",
			want:     "x | x",
		},
		{
			name:     "empty template is identity",
			template: "",
			chunk:    "unchanged",
			want:     "unchanged",
		},
		{
			name:     "unknown placeholder stays verbatim",
			template: "{{title}} - {{chunk}}",
			chunk:    "body",
			want:     "{{title}} - body",
		},
		{
			name:     "unclosed braces stay verbatim",
			template: "prefix {{chunk",
			chunk:    "ignored",
			want:     "prefix {{chunk",
		},
		{
			name:     "stray closers stay verbatim",
			template: "}}{{chunk}}{{",
			chunk:    "mid",
			want:     "}}mid{{",
		},
		{
			name:     "template without placeholders",
			template: "fixed output",
			chunk:    "ignored",
			want:     "fixed output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.template, nil)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			got, metadata := r.Render(tt.chunk)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			if len(metadata) != 0 {
				t.Errorf("Expected empty metadata without field templates, got %v", metadata)
			}
		})
	}
}

func TestRender_MetadataFields(t *testing.T) {
	r, err := New("{{chunk}}", map[string]string{
		"source":  "knowledge base",
		"excerpt": "begins: {{chunk}}",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, metadata := r.Render("alpha")
	if text != "alpha" {
		t.Errorf("Render() text = %q", text)
	}
	if len(metadata) != 2 {
		t.Fatalf("Expected 2 metadata fields, got %d", len(metadata))
	}
	if metadata["source"] != "knowledge base" {
		t.Errorf("source = %q", metadata["source"])
	}
	if metadata["excerpt"] != "begins: alpha" {
		t.Errorf("excerpt = %q", metadata["excerpt"])
	}
}

func TestNew_BlankFieldName(t *testing.T) {
	_, err := New("{{chunk}}", map[string]string{" ": "value"})
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Expected ErrConfiguration, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("no templates disables rendering", func(t *testing.T) {
		r, err := NewFromConfig(core.DefaultProcessingConfig())
		if err != nil {
			t.Fatalf("NewFromConfig() error = %v", err)
		}
		if r.Enabled() {
			t.Fatal("Expected disabled renderer")
		}
	})

	t.Run("chunk template enables rendering", func(t *testing.T) {
		cfg := core.DefaultProcessingConfig()
		cfg.ChunkTemplate = "T: {{chunk}}"
		r, err := NewFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewFromConfig() error = %v", err)
		}
		if !r.Enabled() {
			t.Fatal("Expected enabled renderer")
		}
		text, metadata := r.Render("c")
		if text != "T: c" {
			t.Errorf("Render() = %q", text)
		}
		if len(metadata) != 0 {
			t.Errorf("Expected no metadata, got %v", metadata)
		}
	})

	t.Run("metadata template alone keeps text unchanged", func(t *testing.T) {
		cfg := core.DefaultProcessingConfig()
		cfg.MetadataTemplate = map[string]string{"origin": "upload"}
		r, err := NewFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewFromConfig() error = %v", err)
		}
		text, metadata := r.Render("body")
		if text != "body" {
			t.Errorf("Expected identity text, got %q", text)
		}
		if metadata["origin"] != "upload" {
			t.Errorf("metadata = %v", metadata)
		}
	})
}
