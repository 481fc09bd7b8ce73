package artifact_fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davarch/ci-runner/internal/domain"
)

func TestCollect_GlobsAndDirectories(t *testing.T) {
	ws := t.TempDir()
	mustWrite(t, filepath.Join(ws, "coverage.xml"), "<coverage/>")
	mustWrite(t, filepath.Join(ws, "report", "index.html"), "<html/>")
	mustWrite(t, filepath.Join(ws, "report", "assets", "style.css"), "body{}")

	s := New(t.TempDir())
	files, err := s.Collect(context.Background(), "r1", "api-test", ws, []string{"coverage.xml", "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 archived files, got %d: %v", len(files), files)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("archived file missing: %v", err)
		}
	}
}

func TestCollect_MissingPatternIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	files, err := s.Collect(context.Background(), "r1", "api-test", t.TempDir(), []string{"report/*.html"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestWriteReport_CreatesIndentedJSON(t *testing.T) {
	base := t.TempDir()
	s := New(base)

	now := time.Now()
	err := s.WriteReport(context.Background(), domain.RunReport{
		RunID:    "r1",
		Branch:   "release",
		Started:  now,
		Finished: now.Add(time.Minute),
		Stages: []domain.StageResult{
			{Stage: "api-test", Status: domain.StatusTolerated, Started: now, Finished: now},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "r1", "report.json")); err != nil {
		t.Fatalf("report not created: %v", err)
	}
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}
