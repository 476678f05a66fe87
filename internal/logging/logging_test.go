package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_Prefix(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Stderr: &buf})

	f.Logger("sync").Printf("hello %d", 1)
	if !strings.Contains(buf.String(), "[sync] ") || !strings.Contains(buf.String(), "hello 1") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestDebug_Gate(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Stderr: &buf})
	debug := f.Debug("todoist")

	debug.Println("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output written while quiet: %q", buf.String())
	}

	f.SetVerbose(true)
	debug.Println("shown")
	if !strings.Contains(buf.String(), "[todoist] DEBUG: ") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if !f.Verbose() {
		t.Error("Verbose() should be true")
	}
}

func TestFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "gtd.log")
	f := New(Options{File: path, MaxSizeMB: 1, Stderr: &buf})

	f.Logger("web").Println("to both")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "[web] ") {
		t.Errorf("file content %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stderr content %q", buf.String())
	}
}

func TestClose_NoFile(t *testing.T) {
	if err := New(Options{}).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
