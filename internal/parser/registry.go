// Package parser holds the per-language SymbolParser registry. Each
// language implementation keeps no state across calls — everything needed
// to parse one file is passed to Parse and nothing survives between calls.
package parser

import (
	"fmt"

	"github.com/sevigo/codesentry/internal/core"
)

// Registry dispatches a source file to the SymbolParser registered for its Language.
type Registry struct {
	parsers map[core.Language]core.SymbolParser
}

// NewRegistry builds a registry from the given parsers, keyed by their own Language().
func NewRegistry(parsers ...core.SymbolParser) *Registry {
	r := &Registry{parsers: make(map[core.Language]core.SymbolParser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Language()] = p
	}
	return r
}

// Get returns the parser registered for lang, or false if none is registered
// (callers should mark the file's ParseErr and skip it, per the Semantic
// error-handling kind).
func (r *Registry) Get(lang core.Language) (core.SymbolParser, bool) {
	p, ok := r.parsers[lang]
	return p, ok
}

// Parse looks up the parser for lang and runs it, wrapping "no parser
// registered" as a semantic error so callers can treat it uniformly with a
// parser's own internal failures.
func (r *Registry) Parse(lang core.Language, source []byte, path string) (*core.ParseResult, error) {
	p, ok := r.Get(lang)
	if !ok {
		return nil, core.NewKindError(core.ErrKindSemantic, fmt.Errorf("no parser registered for language %q", lang))
	}
	result, err := p.Parse(source, path)
	if err != nil {
		return nil, core.NewKindError(core.ErrKindSemantic, fmt.Errorf("parse %s: %w", path, err))
	}
	return result, nil
}
