//go:build linux

// Command judge-orchestrate judges one submission directory end to end:
// it resolves the submission's language and test cases, drives a
// Supervisor/Orchestrator pair to completion, and prints the
// JudgementResult as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sandbox "github.com/libjudge/sandboxd"
)

// submissionMeta is the on-disk description of one submission,
// read from <dir>/submission.json. It is a judge-orchestrate concern,
// not part of the sandbox engine's own wire formats.
type submissionMeta struct {
	SubmissionID     string  `json:"submission_id"`
	Language         string  `json:"language"`
	PerTestTimeLimit float64 `json:"per_test_time_limit_seconds"`
}

var (
	submissionDir string
	sandDir       string
	metricsAddr   string
)

func main() {
	cmd := &cobra.Command{
		Use:           "judge-orchestrate --submission DIR",
		Short:         "Judge one submission directory and print its result",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVar(&submissionDir, "submission", "", "submission directory (required)")
	cmd.Flags().StringVar(&sandDir, "sand-dir", "", "directory bound onto /sand (default: <submission>/sand)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	_ = cmd.MarkFlagRequired("submission")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "judge-orchestrate:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := sandbox.LoadConfig()
	if err != nil {
		return err
	}

	registry, err := sandbox.LoadLanguageRegistry(cfg.LangsTOMLPath)
	if err != nil {
		return err
	}

	meta, err := loadSubmissionMeta(submissionDir)
	if err != nil {
		return err
	}
	lang, err := registry.Lookup(meta.Language)
	if err != nil {
		return err
	}
	checkerLang, err := registry.Lookup("checker")
	if err != nil {
		return err
	}
	cases, err := discoverTestCases(filepath.Join(submissionDir, "tests"))
	if err != nil {
		return err
	}

	judgement := sandbox.Judgement{
		SubmissionID:     meta.SubmissionID,
		Language:         lang,
		CheckerLanguage:  checkerLang,
		TestCases:        cases,
		PerTestTimeLimit: time.Duration(meta.PerTestTimeLimit * float64(time.Second)),
	}

	sand := sandDir
	if sand == "" {
		sand = filepath.Join(submissionDir, "sand")
	}
	if err := os.MkdirAll(sand, 0o755); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := sandbox.NewMetrics(reg)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, reg, logger)
	}

	supervisor := sandbox.NewSupervisor(sandbox.WorkerConfig{
		BinaryPath: cfg.JudgedBinaryPath,
		WorkDir:    cfg.WorkDir,
	}, logger).WithMetrics(metrics)

	orchestrator := sandbox.NewOrchestrator(sandbox.OrchestratorConfig{
		Supervisor: supervisor,
		WorkDir:    cfg.WorkDir,
		SandDir:    sand,
		Logger:     logger,
		Metrics:    metrics,
	})

	result, err := orchestrator.Run(context.Background(), judgement)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func loadSubmissionMeta(dir string) (submissionMeta, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "submission.json"))
	if err != nil {
		return submissionMeta{}, err
	}
	var meta submissionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return submissionMeta{}, err
	}
	if meta.SubmissionID == "" {
		meta.SubmissionID = uuid.NewString()
	}
	if meta.PerTestTimeLimit <= 0 {
		meta.PerTestTimeLimit = 2
	}
	return meta, nil
}

// discoverTestCases pairs up <name>.in / <name>.out files in dir,
// ordered lexicographically by name.
func discoverTestCases(dir string) ([]sandbox.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".in") {
			names[strings.TrimSuffix(e.Name(), ".in")] = true
		}
	}
	cases := make([]sandbox.TestCase, 0, len(names))
	for name := range names {
		cases = append(cases, sandbox.TestCase{
			Name:        name,
			InputPath:   filepath.Join(dir, name+".in"),
			ExpectedOut: filepath.Join(dir, name+".out"),
		})
	}
	sort.Slice(cases, func(i, k int) bool { return cases[i].Name < cases[k].Name })
	return cases, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", zap.Error(err))
	}
}
