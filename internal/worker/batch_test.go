package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
)

type mockReplayer struct {
	failOn string
}

func (m *mockReplayer) Replay(ctx context.Context, script Script) (*model.CallSummary, error) {
	time.Sleep(5 * time.Millisecond)
	if script.Name == m.failOn {
		return nil, errors.New("replay failed")
	}
	return &model.CallSummary{Turns: len(script.Lines), FinalState: "REVIEW"}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessScripts_PreservesOrder(t *testing.T) {
	processor := NewBatchProcessor(&mockReplayer{}, 3)

	var scripts []Script
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		scripts = append(scripts, Script{Name: name, Lines: []string{"hello"}})
	}

	results := processor.ProcessScripts(context.Background(), scripts)
	if len(results) != len(scripts) {
		t.Fatalf("expected %d results, got %d", len(scripts), len(results))
	}
	for i, r := range results {
		if r.Script != scripts[i].Name {
			t.Errorf("result %d: expected %s, got %s", i, scripts[i].Name, r.Script)
		}
		if r.Error != nil || r.Summary == nil {
			t.Errorf("result %d: unexpected failure %v", i, r.Error)
		}
	}
}

func TestBatchProcessor_ProcessScripts_Error(t *testing.T) {
	processor := NewBatchProcessor(&mockReplayer{failOn: "bad"}, 2)

	results := processor.ProcessScripts(context.Background(), []Script{{Name: "good"}, {Name: "bad"}})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].GetError() != nil {
		t.Errorf("unexpected error for good script: %v", results[0].Error)
	}
	if results[1].GetError() == nil || results[1].Summary != nil {
		t.Error("expected error and no summary for bad script")
	}
}

func TestBatchProcessor_ProcessScripts_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockReplayer{}, 2)
	if results := processor.ProcessScripts(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadScripts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scenario_a.txt", "# happy path\nMy policy is PL-100\n\n  My name is Jane Doe  \n")
	writeFile(t, dir, "scenario_b.txt", "There was a fire and someone is bleeding\n")
	list := writeFile(t, dir, "calls.list", "scenario_a.txt\n# comment\nscenario_b.txt\nscenario_a.txt\n")

	scripts, err := ReadScripts(list)
	if err != nil {
		t.Fatalf("ReadScripts failed: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 scripts after deduplication, got %d", len(scripts))
	}
	if scripts[0].Name != "scenario_a" {
		t.Errorf("unexpected name %q", scripts[0].Name)
	}
	want := []string{"My policy is PL-100", "My name is Jane Doe"}
	if len(scripts[0].Lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(scripts[0].Lines))
	}
	for i := range want {
		if scripts[0].Lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, scripts[0].Lines[i], want[i])
		}
	}
}

func TestReadScripts_MissingScript(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "calls.list", "nope.txt\n")

	if _, err := ReadScripts(list); err == nil {
		t.Error("expected error for a missing script file")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.txt", "hello\nmy car was hit\n")
	list := writeFile(t, dir, "calls.list", "one.txt\n")

	processor := NewBatchProcessor(&mockReplayer{}, 2)
	results, err := processor.ProcessFile(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 1 || results[0].Summary.Turns != 2 {
		t.Errorf("unexpected results %+v", results)
	}

	if _, err := processor.ProcessFile(context.Background(), filepath.Join(dir, "missing.list")); err == nil {
		t.Error("expected error for a missing list")
	}
}
