package testkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocka/adapters/logfile"
	"gocka/domain/outcome"
	"gocka/ports"
)

// TestKit writes synthetic probing logs into a folder for end-to-end tests
type TestKit struct {
	dir    string
	writer *logfile.Writer
}

// NewTestKit creates a test kit rooted at dir
func NewTestKit(dir string) *TestKit {
	return &TestKit{dir: dir, writer: logfile.NewWriter()}
}

// Dir is the folder logs are written to
func (k *TestKit) Dir() string {
	return k.dir
}

// WriteLog writes log as <dir>/<name>.json and returns its path
func (k *TestKit) WriteLog(name string, log *outcome.ModelLog) (string, error) {
	path := filepath.Join(k.dir, name+".json")
	if err := k.writer.Write(context.Background(), path, log); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRaw writes an arbitrary document, for malformed-log cases
func (k *TestKit) WriteRaw(name, content string) (string, error) {
	path := filepath.Join(k.dir, name+".json")
	if err := os.MkdirAll(k.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ProbeCall is one recorded Probability request
type ProbeCall struct {
	Model  string
	Prompt string
	Target string
}

// FakeProber answers from a fixed table keyed by target and records every call
type FakeProber struct {
	mu      sync.Mutex
	probs   map[string]float64
	Default float64
	Err     error
	calls   []ProbeCall
}

var _ ports.Prober = (*FakeProber)(nil)

// NewFakeProber creates a prober returning probs[target], or Default
func NewFakeProber(probs map[string]float64) *FakeProber {
	return &FakeProber{probs: probs}
}

// Probability implements ports.Prober
func (p *FakeProber) Probability(ctx context.Context, model, prompt, target string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, ProbeCall{Model: model, Prompt: prompt, Target: target})
	if p.Err != nil {
		return 0, p.Err
	}
	if v, ok := p.probs[target]; ok {
		return v, nil
	}
	return p.Default, nil
}

// Calls returns the recorded calls in order
func (p *FakeProber) Calls() []ProbeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProbeCall(nil), p.calls...)
}
