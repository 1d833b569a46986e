package langdetect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sevigo/codesentry/internal/core"
)

func TestDetect_ByExtension(t *testing.T) {
	cfg := DefaultConfig()

	cases := map[string]core.Language{
		"main.py":      core.LangPython,
		"lib/util.c":   core.LangC,
		"lib/util.h":   core.LangC,
		"boot.asm":     core.LangAssembly,
		"PAYROLL.CBL":  core.LangCOBOL,
		"notes.txt":    core.LangUnknown,
	}
	for path, want := range cases {
		got := Detect(cfg, path, 10, nil)
		require.Equal(t, want, got, "path=%s", path)
	}
}

func TestDetect_OversizeIsUnknown(t *testing.T) {
	cfg := Config{MaxFileSize: 10}
	got := Detect(cfg, "main.py", 1000, nil)
	require.Equal(t, core.LangUnknown, got)
}

func TestDetect_ShebangFallback(t *testing.T) {
	cfg := DefaultConfig()
	got := Detect(cfg, "script", 20, []byte("#!/usr/bin/env python\nprint(1)\n"))
	require.Equal(t, core.LangPython, got)
}
