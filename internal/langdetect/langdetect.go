// Package langdetect maps a file path and its leading bytes to a Language tag.
package langdetect

import (
	"path/filepath"
	"strings"

	"github.com/sevigo/codesentry/internal/core"
)

// Config bounds the detector's behavior.
type Config struct {
	// MaxFileSize is the byte threshold above which a file is classified
	// unknown and skipped before any parser sees it. Default 1 MiB.
	MaxFileSize int64
}

// DefaultConfig returns the spec default of a 1 MiB file-size ceiling.
func DefaultConfig() Config {
	return Config{MaxFileSize: 1024 * 1024}
}

var extensionTable = map[string]core.Language{
	".py":  core.LangPython,
	".pyw": core.LangPython,
	".c":   core.LangC,
	".h":   core.LangC,
	".s":   core.LangAssembly,
	".asm": core.LangAssembly,
	".cob": core.LangCOBOL,
	".cbl": core.LangCOBOL,
	".cpy": core.LangCOBOL,
}

var shebangTable = []struct {
	prefix string
	lang   core.Language
}{
	{"#!/usr/bin/env python", core.LangPython},
	{"#!/usr/bin/python", core.LangPython},
	{"#!", core.LangUnknown}, // any other shebang: recognized as a script, language unresolved
}

// Detect classifies a file by path extension, falling back to a shebang scan
// for extensionless files. fileSize, when >= 0, is checked against cfg's
// MaxFileSize before any content inspection; oversized files are Unknown.
func Detect(cfg Config, path string, fileSize int64, firstBytes []byte) core.Language {
	if cfg.MaxFileSize > 0 && fileSize > cfg.MaxFileSize {
		return core.LangUnknown
	}

	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionTable[ext]; ok {
		return lang
	}
	if ext != "" {
		return core.LangUnknown
	}

	return detectByShebang(firstBytes)
}

// detectByShebang scans up to the first 256 bytes of an extensionless file
// for a recognizable interpreter directive.
func detectByShebang(firstBytes []byte) core.Language {
	const maxScan = 256
	if len(firstBytes) > maxScan {
		firstBytes = firstBytes[:maxScan]
	}
	line := firstBytes
	if idx := indexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	text := string(line)
	for _, entry := range shebangTable {
		if strings.HasPrefix(text, entry.prefix) {
			return entry.lang
		}
	}
	return core.LangUnknown
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
