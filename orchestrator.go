//go:build linux

package sandbox

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	compileTimeLimit = 30 * time.Second
	checkerTimeLimit = 30 * time.Second
)

// OrchestratorConfig wires an Orchestrator to the collaborators it
// drives: one Supervisor (and therefore one Worker) per Judgement, and
// the two directories File-Staging copies between: WorkDir (host-owned,
// holds sources, compiled objects, and test case files) and SandDir
// (the directory bound onto /sand for the worker's sandbox). Language
// resolution happens earlier, when the caller builds the Judgement from
// a LanguageRegistry lookup.
type OrchestratorConfig struct {
	Supervisor *Supervisor
	WorkDir    string
	SandDir    string
	Logger     *zap.Logger
	Metrics    *Metrics
}

// Orchestrator drives one Judgement to completion: compile checker,
// compile submission, run every test case in order, invoke the checker,
// aggregate the final verdict.
type Orchestrator struct {
	cfg OrchestratorConfig
}

// NewOrchestrator constructs an Orchestrator from its collaborators.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes the full Judgement state machine and returns its
// aggregate result. Any unhandled failure surfaces as verdict IE; it is
// never retried.
func (o *Orchestrator) Run(ctx context.Context, j Judgement) (JudgementResult, error) {
	var result JudgementResult

	err := o.cfg.Supervisor.Run(ctx, func(w *Worker) error {
		checkerObjects, err := o.compileChecker(w, j.CheckerLanguage)
		if err != nil {
			result.Verdict = VerdictICE
			return nil
		}

		userObjects, err := o.compileUser(w, j.Language)
		if err != nil {
			result.Verdict = VerdictCE
			return nil
		}

		cases, err := o.runAllCases(w, j, userObjects, checkerObjects)
		result.Cases = cases
		result.Verdict = aggregateVerdict(cases)
		result.MaxTime = maxCaseTime(cases)
		result.MaxMemory = maxCaseMemory(cases)
		return err
	})

	if err != nil {
		result.Verdict = VerdictIE
		if o.cfg.Logger != nil {
			o.cfg.Logger.Error("judgement failed", zap.String("submission_id", j.SubmissionID), zap.Error(err))
		}
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveJudgement(result)
	}
	return result, nil
}

// compileChecker stages checker.cpp and testlib.h, compiles with the
// judgement's checker LanguageSpec, and returns its produced objects.
func (o *Orchestrator) compileChecker(w *Worker, checkerLang LanguageSpec) ([]string, error) {
	req := RunRequest{
		ExecCommand: checkerLang.Compile,
		TimeLimit:   compileTimeLimit,
		SendFiles:   []string{checkerLang.SourceName, "testlib.h"},
		GetFiles:    checkerLang.Objects,
	}
	result, err := o.runStep(w, req)
	if err != nil {
		return nil, err
	}
	if result.Status != StatusOK {
		return nil, ErrDeclaredObjectGone
	}
	return checkerLang.Objects, nil
}

// compileUser stages the submission source, compiles it with its
// LanguageSpec, and returns its produced objects.
func (o *Orchestrator) compileUser(w *Worker, lang LanguageSpec) ([]string, error) {
	req := RunRequest{
		ExecCommand: lang.Compile,
		TimeLimit:   compileTimeLimit,
		SendFiles:   []string{lang.SourceName},
		GetFiles:    lang.Objects,
	}
	result, err := o.runStep(w, req)
	if err != nil {
		return nil, err
	}
	if result.Status != StatusOK {
		return nil, ErrDeclaredObjectGone
	}
	return lang.Objects, nil
}

// runAllCases runs every TestCase in lexicographic order by Name,
// invoking the checker after any case that itself completed OK.
func (o *Orchestrator) runAllCases(w *Worker, j Judgement, userObjects, checkerObjects []string) ([]CaseResult, error) {
	cases := make([]TestCase, len(j.TestCases))
	copy(cases, j.TestCases)
	sort.Slice(cases, func(i, k int) bool { return cases[i].Name < cases[k].Name })

	results := make([]CaseResult, 0, len(cases))
	for _, tc := range cases {
		cr, err := o.runOneCase(w, j, tc, userObjects, j.CheckerLanguage, checkerObjects)
		if err != nil {
			return results, err
		}
		results = append(results, cr)
	}
	return results, nil
}

// runOneCase executes the submission against one test case, then the
// checker if the submission itself didn't already fail, and maps the
// checker's own RunResult status onto the case verdict. Test case input
// and expected output are staged into the Orchestrator's working
// directory under fixed names so they flow through the same
// send_files/get_files declarations as any other staged file; case.your
// round-trips through the working directory too, since the next comm's
// "clean" would otherwise remove it from /sand before the checker runs.
func (o *Orchestrator) runOneCase(w *Worker, j Judgement, tc TestCase, userObjects []string, checkerLang LanguageSpec, checkerObjects []string) (CaseResult, error) {
	if err := copyIntoWorkDir(tc.InputPath, o.cfg.WorkDir, "case.in"); err != nil {
		return CaseResult{}, err
	}
	if err := copyIntoWorkDir(tc.ExpectedOut, o.cfg.WorkDir, "case.out"); err != nil {
		return CaseResult{}, err
	}

	runReq := RunRequest{
		ExecCommand: j.Language.Exec,
		TimeLimit:   j.PerTestTimeLimit,
		Stdin:       "case.in",
		Stdout:      "case.your",
		SendFiles:   append(append([]string{}, userObjects...), "case.in"),
		GetFiles:    []string{"case.your"},
	}
	runResult, err := o.runStep(w, runReq)
	if err != nil {
		return CaseResult{}, err
	}

	cr := CaseResult{Name: tc.Name, Verdict: statusToVerdict(runResult.Status), CPUTime: runResult.CPUTime, PeakMemory: runResult.PeakMemory}
	if runResult.Status != StatusOK {
		return cr, nil
	}

	checkerExec := ExpandExec(checkerLang.Exec, map[string]string{
		"input":      "case.in",
		"judge":      "case.out",
		"contestant": "case.your",
	})
	checkerSend := append(append([]string{}, checkerObjects...), "case.in", "case.out", "case.your")
	checkerReq := RunRequest{
		ExecCommand: checkerExec,
		TimeLimit:   checkerTimeLimit,
		SendFiles:   checkerSend,
	}
	checkerResult, err := o.runStep(w, checkerReq)
	if err != nil {
		return CaseResult{}, err
	}
	cr.Verdict = checkerStatusToVerdict(checkerResult.Status)
	return cr, nil
}

// runStep stages a RunRequest's declared inputs, sends it to the
// worker, then stages its declared outputs back out.
func (o *Orchestrator) runStep(w *Worker, req RunRequest) (RunResult, error) {
	if err := w.Clean(); err != nil {
		return RunResult{}, err
	}
	if err := StageIn(o.cfg.WorkDir, o.cfg.SandDir, req.SendFiles); err != nil {
		return RunResult{}, err
	}
	result, err := w.Comm(req)
	if err != nil {
		return RunResult{}, err
	}
	if err := StageOut(o.cfg.SandDir, o.cfg.WorkDir, req.GetFiles, &result); err != nil {
		return RunResult{}, err
	}
	return result, nil
}

// copyIntoWorkDir stages an arbitrary host path (a test case's input or
// expected-output file, not necessarily already under WorkDir) into the
// Orchestrator's working directory under a fixed name, ready to be
// declared in a RunRequest's SendFiles like any other staged file.
func copyIntoWorkDir(hostPath, workDir, name string) error {
	if hostPath == "" {
		return nil
	}
	return copyRegularFile(hostPath, workDir+"/"+name)
}

// statusToVerdict maps a submission run's RunResult.Status onto a case
// verdict before the checker runs.
func statusToVerdict(status Status) Verdict {
	switch status {
	case StatusOK:
		return VerdictAC // provisional; overwritten by the checker's own verdict
	case StatusTLE:
		return VerdictTLE
	case StatusRE:
		return VerdictRE
	default:
		return VerdictIE
	}
}

// checkerStatusToVerdict maps the checker program's own RunResult.Status
// onto the case's final verdict: the checker's exit code, not the
// submission's, decides AC vs WA here.
func checkerStatusToVerdict(status Status) Verdict {
	switch status {
	case StatusOK:
		return VerdictAC
	case StatusRE:
		return VerdictWA
	case StatusTLE:
		return VerdictITLE
	default:
		return VerdictIE
	}
}

// aggregateVerdict folds every case verdict into the worst one by
// precedence. An empty case list aggregates to AC (vacuously true).
func aggregateVerdict(cases []CaseResult) Verdict {
	verdict := VerdictAC
	for _, c := range cases {
		verdict = worseVerdict(verdict, c.Verdict)
	}
	return verdict
}

func maxCaseTime(cases []CaseResult) time.Duration {
	var max time.Duration
	for _, c := range cases {
		if c.CPUTime > max {
			max = c.CPUTime
		}
	}
	return max
}

func maxCaseMemory(cases []CaseResult) int64 {
	var max int64
	for _, c := range cases {
		if c.PeakMemory > max {
			max = c.PeakMemory
		}
	}
	return max
}
