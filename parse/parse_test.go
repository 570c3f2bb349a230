package parse

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTextParser(t *testing.T) {
	parser := NewTextParser()
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "plain text",
			data: []byte("hello world"),
			want: "hello world",
		},
		{
			name: "windows line endings",
			data: []byte("line one\r\nline two\r\n"),
			want: "line one\nline two\n",
		},
		{
			name: "bare carriage returns",
			data: []byte("line one\rline two"),
			want: "line one\nline two",
		},
		{
			name: "unicode",
			data: []byte("héllo wörld 日本語"),
			want: "héllo wörld 日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Parse(ctx, Input{Filename: "doc.txt", Data: tt.data})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextParser_Errors(t *testing.T) {
	parser := NewTextParser()
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "binary content", data: []byte("abc\x00def")},
		{name: "invalid utf-8", data: []byte{0xff, 0xfe, 0xfd}},
		{name: "whitespace only", data: []byte("   \n\t  ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(ctx, Input{Filename: "bad.txt", Data: tt.data})
			if !errors.Is(err, ErrParse) {
				t.Fatalf("Expected ErrParse, got %v", err)
			}
			if !strings.Contains(err.Error(), "bad.txt") {
				t.Errorf("Expected error to name the file, got %q", err.Error())
			}
		})
	}
}

func TestParserFunc(t *testing.T) {
	called := false
	fn := ParserFunc(func(_ context.Context, input Input) (string, error) {
		called = true
		return string(input.Data), nil
	})

	got, err := fn.Parse(context.Background(), Input{Data: []byte("pass through")})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !called {
		t.Fatal("Expected wrapped function to be called")
	}
	if got != "pass through" {
		t.Errorf("Parse() = %q, want %q", got, "pass through")
	}
}
