package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "-mode [parse|aggregate|load|report|publish]") {
		t.Errorf("Expected usage, got %q", stdout.String())
	}

	stdout.Reset()
	if code := run(context.Background(), []string{"-lang", "zh"}, &stdout, &stderr); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "用法") {
		t.Errorf("Expected zh usage, got %q", stdout.String())
	}
}

func TestRun_UnknownLanguage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-lang", "fr", "-mode", "parse"}, &stdout, &stderr); code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), `unsupported -lang "fr"`) {
		t.Errorf("got %q", stderr.String())
	}
}

func TestRun_InvalidMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-mode", "replay"}, &stdout, &stderr); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), `Invalid mode "replay"`) {
		t.Errorf("got %q", stdout.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-no-such-flag"}, &stdout, &stderr); code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}

func TestRun_Parse(t *testing.T) {
	in := writeSlowLog(t, sampleSlowLog)
	out := filepath.Join(t.TempDir(), "out.json")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-mode", "parse", "-slow-in", in, "-slow-out", out, "-log-level", "error"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(readRecords(t, data)); n != 5 {
		t.Errorf("Expected 5 records, got %d", n)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := writeSlowLog(t, sampleSlowLog)
	cfg := filepath.Join(dir, "digest.toml")
	content := "mode = \"aggregate\"\nslow-in = \"" + filepath.ToSlash(in) + "\"\ntop = 1\nlog-level = \"error\"\n"
	if err := os.WriteFile(cfg, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config", cfg}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one row, got %q", stdout.String())
	}
	if !strings.HasSuffix(lines[1], "\tSELECT c FROM sbtest1 WHERE id = ?") {
		t.Errorf("Expected the most expensive fingerprint first, got %q", lines[1])
	}
}

func TestRun_ModeError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-mode", "load", "-driver", "oracle", "-slow-out", "x", "-log-level", "error"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), `unsupported driver \"oracle\"`) {
		t.Errorf("Expected the driver error to be logged, got %q", stderr.String())
	}
}
