//go:build linux

package sandbox

import "time"

// Status is the outcome of a single measured run, as reported by the
// Inner Runner and carried unchanged through the Outer Runner and
// Supervisor. These are the only strings RunResult ever carries.
type Status string

const (
	StatusOK  Status = "OK"
	StatusTLE Status = "TLE"
	StatusRE  Status = "RE"
	StatusIE  Status = "IE"
)

// Verdict is the outcome of one judged test case, or of a whole
// Judgement after aggregation. Precedence (lowest overrides) is
// AC < WA < TLE < MLE < RE < ITLE < IE < CE < ICE.
type Verdict string

const (
	VerdictAC   Verdict = "AC"
	VerdictWA   Verdict = "WA"
	VerdictTLE  Verdict = "TLE"
	VerdictMLE  Verdict = "MLE"
	VerdictRE   Verdict = "RE"
	VerdictITLE Verdict = "ITLE"
	VerdictIE   Verdict = "IE"
	VerdictCE   Verdict = "CE"
	VerdictICE  Verdict = "ICE"
)

var verdictRank = map[Verdict]int{
	VerdictAC:   0,
	VerdictWA:   1,
	VerdictTLE:  2,
	VerdictMLE:  3,
	VerdictRE:   4,
	VerdictITLE: 5,
	VerdictIE:   6,
	VerdictCE:   7,
	VerdictICE:  8,
}

// worseVerdict returns whichever of a, b has the higher precedence rank.
func worseVerdict(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// RunRequest describes one measured invocation. Unknown numeric fields
// use -1 as their "unknown" sentinel on the RunResult side, never on the
// request side: a RunRequest is always fully specified before use.
type RunRequest struct {
	ExecCommand string        `json:"exec"`
	Stdin       string        `json:"stdin,omitempty"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	TimeLimit   time.Duration `json:"-"`
	Overlay     bool          `json:"-"`
	SendFiles   []string      `json:"-"`
	GetFiles    []string      `json:"-"`
}

// RunResult is the outcome of one RunRequest. ReturnCode, CPUTime, and
// PeakMemory use -1 to mean "unknown" rather than zero values, since a
// genuine return code or timing of 0 is meaningful.
type RunResult struct {
	Status     Status        `json:"status"`
	ReturnCode int           `json:"returncode"`
	CPUTime    time.Duration `json:"time_nanos"`
	PeakMemory int64         `json:"memory"`
}

// unknownResult returns a RunResult with the given status and every
// numeric field set to the -1 "unknown" sentinel, so a short-circuit
// failure path need not report 0s as if they were measured.
func unknownResult(status Status) RunResult {
	return RunResult{Status: status, ReturnCode: -1, CPUTime: -1, PeakMemory: -1}
}

// LanguageSpec maps a language identifier to its compile/exec recipe.
// It is immutable after the Language Registry loads it.
type LanguageSpec struct {
	ID          string
	SourceName  string
	Compile     string
	Objects     []string
	Exec        string
	CompileTime time.Duration
}

// TestCase is one (name, input, expected-output) triple within a
// Judgement, ordered lexicographically by Name.
type TestCase struct {
	Name        string
	InputPath   string
	ExpectedOut string
}

// CaseResult is the per-test-case outcome recorded during judging,
// carrying enough detail for the Orchestrator's aggregation step.
type CaseResult struct {
	Name       string
	Verdict    Verdict
	CPUTime    time.Duration
	PeakMemory int64
}

// Judgement is the unit of work the Judgement Orchestrator drives to
// completion: compile checker, compile submission, run every test case,
// aggregate.
type Judgement struct {
	SubmissionID     string
	Language         LanguageSpec
	CheckerLanguage  LanguageSpec
	TestCases        []TestCase
	PerTestTimeLimit time.Duration
}

// JudgementResult is the terminal outcome of a Judgement: an aggregate
// verdict plus per-case detail and the worst-case resource usage.
type JudgementResult struct {
	Verdict   Verdict
	Cases     []CaseResult
	MaxTime   time.Duration
	MaxMemory int64
}
