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


// Package render reformats chunk text and derives metadata fields before
// embedding.
//
// Templates reference the chunk text through a {{chunk}} placeholder.
// Unknown placeholders stay verbatim and rendering never fails, so preview
// and production paths behave identically. Metadata templates are validated
// once into an ordered field list at construction; Render does no
// per-chunk validation.
package render

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/knowit/core"
)

// ChunkPlaceholder is the token a template uses to reference the chunk text.
const ChunkPlaceholder = "chunk"

// Metadata attached to every chunk when templating is disabled.
const (
	defaultTypeKey   = "type"
	defaultTypeValue = "text_chunk"
)

// token is one parsed template element: either literal text or the chunk
// substitution point.
type token struct {
	text  string
	chunk bool
}

type template []token

// fieldTemplate is one validated metadata field with its parsed template.
type fieldTemplate struct {
	key  string
	tmpl template
}

// Renderer applies one collection's chunk and metadata templates.
// Immutable after construction, safe for concurrent use.
type Renderer struct {
	enabled   bool
	chunkTmpl template
	fields    []fieldTemplate
}

// Disabled returns the pass-through renderer: chunk text is unchanged and
// metadata is the fixed {type: text_chunk} field.
func Disabled() *Renderer {
	return &Renderer{}
}

// New builds a renderer from a chunk template and a metadata template
// mapping. An empty chunk template renders the chunk text unchanged.
// Metadata fields render in sorted key order; blank field names are a
// configuration error.
func New(chunkTemplate string, metadataTemplate map[string]string) (*Renderer, error) {
	if chunkTemplate == "" {
		chunkTemplate = "{{chunk}}"
	}
	r := &Renderer{
		enabled:   true,
		chunkTmpl: parseTemplate(chunkTemplate),
	}
	for _, key := range slices.Sorted(maps.Keys(metadataTemplate)) {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: metadata field name cannot be blank", core.ErrConfiguration)
		}
		r.fields = append(r.fields, fieldTemplate{key: key, tmpl: parseTemplate(metadataTemplate[key])})
	}
	return r, nil
}

// NewFromConfig builds the renderer a processing configuration asks for:
// disabled when the configuration carries no templates at all.
func NewFromConfig(config core.ProcessingConfig) (*Renderer, error) {
	if config.ChunkTemplate == "" && len(config.MetadataTemplate) == 0 {
		return Disabled(), nil
	}
	return New(config.ChunkTemplate, config.MetadataTemplate)
}

// Enabled reports whether templating is active.
func (r *Renderer) Enabled() bool {
	return r.enabled
}

// Render produces the rendered text and metadata for one chunk.
// It never fails.
func (r *Renderer) Render(chunkText string) (string, map[string]string) {
	if !r.enabled {
		return chunkText, map[string]string{defaultTypeKey: defaultTypeValue}
	}

	metadata := make(map[string]string, len(r.fields))
	for _, field := range r.fields {
		metadata[field.key] = field.tmpl.render(chunkText)
	}
	return r.chunkTmpl.render(chunkText), metadata
}

// parseTemplate splits a template string into literal and substitution
// tokens. Only {{chunk}} (inner whitespace tolerated) substitutes; any
// other {{...}} sequence, and any unclosed brace pair, is literal text.
func parseTemplate(s string) template {
	var tmpl template
	for {
		open := strings.Index(s, "{{")
		if open < 0 {
			break
		}
		rest := s[open+2:]
		closer := strings.Index(rest, "}}")
		if closer < 0 {
			break
		}
		end := open + 2 + closer + 2
		if strings.TrimSpace(rest[:closer]) == ChunkPlaceholder {
			if open > 0 {
				tmpl = append(tmpl, token{text: s[:open]})
			}
			tmpl = append(tmpl, token{chunk: true})
		} else {
			tmpl = append(tmpl, token{text: s[:end]})
		}
		s = s[end:]
	}
	if s != "" {
		tmpl = append(tmpl, token{text: s})
	}
	return tmpl
}

// render substitutes the chunk text into the parsed template.
func (t template) render(chunk string) string {
	var b strings.Builder
	for _, tok := range t {
		if tok.chunk {
			b.WriteString(chunk)
		} else {
			b.WriteString(tok.text)
		}
	}
	return b.String()
}
