// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package parse defines the document text extraction contract.
//
// A Parser turns raw uploaded bytes into the plain text that flows into
// chunking. Format-specific extraction (PDF, HTML, office formats) plugs in
// behind the same interface; this package ships the plain-text reference
// implementation.
package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrParse is the root of all extraction failures. Callers match it with
// errors.Is to distinguish a bad document from an infrastructure error.
var ErrParse = errors.New("parse failed")

// Input is one uploaded document awaiting text extraction.
type Input struct {
	// Filename is the original upload name, used for error reporting and
	// for content-derived document identity.
	Filename string

	// SourceId optionally identifies where the document came from
	// (an external system key, a URL, an upload batch).
	SourceId string

	// Data is the raw uploaded bytes.
	Data []byte
}

// Parser extracts plain text from an uploaded document.
// Implementations must be thread-safe for concurrent use.
type Parser interface {
	// Parse returns the extracted text for the given input.
	// Failures wrap ErrParse and name the offending file.
	Parse(ctx context.Context, input Input) (string, error)
}

// ParserFunc adapts a plain function to the Parser interface.
// Useful for test doubles and inline format handlers.
type ParserFunc func(ctx context.Context, input Input) (string, error)

// Parse calls the wrapped function.
func (f ParserFunc) Parse(ctx context.Context, input Input) (string, error) {
	return f(ctx, input)
}

// TextParser is the plain-text reference Parser. It accepts UTF-8 input,
// normalizes line endings, and rejects binary payloads.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// NewTextParser creates a plain-text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse validates and normalizes plain-text input.
func (tp *TextParser) Parse(_ context.Context, input Input) (string, error) {
	if len(input.Data) == 0 {
		return "", fmt.Errorf("%w: %s: empty document", ErrParse, input.Filename)
	}
	if bytes.ContainsRune(input.Data, 0) {
		return "", fmt.Errorf("%w: %s: binary content", ErrParse, input.Filename)
	}
	if !utf8.Valid(input.Data) {
		return "", fmt.Errorf("%w: %s: invalid UTF-8", ErrParse, input.Filename)
	}

	text := string(input.Data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: no extractable text", ErrParse, input.Filename)
	}
	return text, nil
}
