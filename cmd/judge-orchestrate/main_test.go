//go:build linux

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSubmissionMetaFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{"language":"cpp17"}`
	if err := os.WriteFile(filepath.Join(dir, "submission.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("seed submission.json: %v", err)
	}

	meta, err := loadSubmissionMeta(dir)
	if err != nil {
		t.Fatalf("loadSubmissionMeta() error = %v", err)
	}
	if meta.SubmissionID == "" {
		t.Error("SubmissionID should be filled in when missing from submission.json")
	}
	if meta.PerTestTimeLimit != 2 {
		t.Errorf("PerTestTimeLimit = %v, want default 2", meta.PerTestTimeLimit)
	}
	if meta.Language != "cpp17" {
		t.Errorf("Language = %q, want cpp17", meta.Language)
	}
}

func TestLoadSubmissionMetaKeepsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	raw := `{"submission_id":"sub-1","language":"python3","per_test_time_limit_seconds":5}`
	if err := os.WriteFile(filepath.Join(dir, "submission.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("seed submission.json: %v", err)
	}

	meta, err := loadSubmissionMeta(dir)
	if err != nil {
		t.Fatalf("loadSubmissionMeta() error = %v", err)
	}
	if meta.SubmissionID != "sub-1" {
		t.Errorf("SubmissionID = %q, want sub-1", meta.SubmissionID)
	}
	if meta.PerTestTimeLimit != 5 {
		t.Errorf("PerTestTimeLimit = %v, want 5", meta.PerTestTimeLimit)
	}
}

func TestDiscoverTestCasesPairsAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"02.in", "02.out", "01.in", "01.out"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	// a stray .out with no matching .in must not produce a case
	if err := os.WriteFile(filepath.Join(dir, "03.out"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed 03.out: %v", err)
	}

	cases, err := discoverTestCases(dir)
	if err != nil {
		t.Fatalf("discoverTestCases() error = %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2", len(cases))
	}
	if cases[0].Name != "01" || cases[1].Name != "02" {
		t.Errorf("cases out of order: %q, %q", cases[0].Name, cases[1].Name)
	}
}
