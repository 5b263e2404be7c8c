package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/claimvoice/internal/model"
)

// Script is a recorded call: the caller's committed utterances in order
type Script struct {
	Name  string
	Lines []string
}

// Replayer plays one script through a fresh dialogue
type Replayer interface {
	Replay(ctx context.Context, script Script) (*model.CallSummary, error)
}

// ReplayJob replays a single script
type ReplayJob struct {
	Index    int
	Script   Script
	Replayer Replayer
}

// Execute runs the replay
func (j *ReplayJob) Execute(ctx context.Context) Result {
	summary, err := j.Replayer.Replay(ctx, j.Script)
	return &ReplayResult{
		index:   j.Index,
		Script:  j.Script.Name,
		Summary: summary,
		Error:   err,
	}
}

// ReplayResult is the outcome of one replayed call
type ReplayResult struct {
	index   int
	Script  string
	Summary *model.CallSummary
	Error   error
}

// GetError returns the replay error, if any
func (r *ReplayResult) GetError() error {
	return r.Error
}

// BatchProcessor replays many scripted calls concurrently, one dialogue per script
type BatchProcessor struct {
	replayer    Replayer
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(replayer Replayer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		replayer:    replayer,
		concurrency: concurrency,
	}
}

// ProcessScripts replays scripts and returns results in input order
func (b *BatchProcessor) ProcessScripts(ctx context.Context, scripts []Script) []*ReplayResult {
	if len(scripts) == 0 {
		return []*ReplayResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, s := range scripts {
		if !pool.Submit(&ReplayJob{Index: i, Script: s, Replayer: b.replayer}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*ReplayResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(*ReplayResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// ProcessFile reads a script list and replays every script in it
func (b *BatchProcessor) ProcessFile(ctx context.Context, listPath string) ([]*ReplayResult, error) {
	scripts, err := ReadScripts(listPath)
	if err != nil {
		return nil, fmt.Errorf("read scripts: %w", err)
	}
	return b.ProcessScripts(ctx, scripts), nil
}

// ReadScripts loads every script named in a list file (one path per line).
// Relative paths resolve against the list's directory; duplicates are skipped.
func ReadScripts(listPath string) ([]Script, error) {
	paths, err := readLines(listPath)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(listPath)
	seen := make(map[string]bool)
	var scripts []Script

	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true

		s, err := LoadScript(p)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// LoadScript reads one transcript file: one caller utterance per line
func LoadScript(path string) (Script, error) {
	lines, err := readLines(path)
	if err != nil {
		return Script{}, err
	}
	return Script{
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Lines: lines,
	}, nil
}

// readLines returns trimmed non-empty lines, skipping # comments
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file %s: %w", path, err)
	}
	return lines, nil
}
