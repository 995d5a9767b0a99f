//go:build linux

package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// WorkerLoopConfig is the server side of WorkerConfig: everything the
// judged binary's normal-mode entrypoint needs to answer the Supervisor's
// clean/comm/last verbs and dispatch each comm through an Outer Runner.
type WorkerLoopConfig struct {
	WorkDir          string // holds comm.json / resp.json, same path the Supervisor's Worker uses
	JudgeUID         uint32
	JudgeGID         uint32
	CgroupRoot       string
	CgroupName       string
	ExecutorCorePath string
	SelfPath         string // re-exec target for the Outer Runner; normally os.Executable()
	UseUserNamespace bool
	TimeoutMargin    time.Duration
}

// RunWorkerLoop is the judged binary's normal-mode main loop: it reads
// verb lines from r and writes "OK\n" replies to w until it sees "last",
// at which point it returns nil so the caller can exit. Any malformed
// verb is itself a protocol desync, surfaced to the caller as an error
// rather than answered with OK.
func RunWorkerLoop(cfg WorkerLoopConfig, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch scanner.Text() {
		case "clean":
			if err := CleanWorkDir(cfg.WorkDir, cfg.JudgeUID); err != nil {
				return err
			}
			if err := writeOK(w); err != nil {
				return err
			}
		case "comm":
			if err := handleComm(cfg); err != nil {
				return err
			}
			if err := writeOK(w); err != nil {
				return err
			}
		case "last":
			return writeOK(w)
		default:
			return &Error{Code: ErrProtocolDesync, Message: "unknown verb: " + scanner.Text()}
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "read verb: " + err.Error(), cause: err}
	}
	return nil
}

func writeOK(w io.Writer) error {
	_, err := fmt.Fprintln(w, "OK")
	return err
}

// handleComm reads the request the Supervisor left in comm.json, runs it
// through the Outer Runner, and leaves the result in resp.json.
func handleComm(cfg WorkerLoopConfig) error {
	commPath := cfg.WorkDir + "/comm.json"
	respPath := cfg.WorkDir + "/resp.json"

	raw, err := os.ReadFile(commPath)
	if err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "read comm.json: " + err.Error(), cause: err}
	}
	var wire commWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return &Error{Code: ErrProtocolDesync, Message: "unmarshal comm.json: " + err.Error(), cause: err}
	}

	req := RunRequest{
		ExecCommand: wire.Exec,
		TimeLimit:   secondsToDuration(wire.TimeLimit),
		Stdin:       wire.Stdin,
		Stdout:      wire.Stdout,
		Stderr:      wire.Stderr,
	}

	outerCfg := OuterConfig{
		Inner: InnerConfig{
			Req:              req,
			WorkDir:          cfg.WorkDir,
			CgroupRoot:       cfg.CgroupRoot,
			CgroupName:       cfg.CgroupName,
			JudgeUID:         cfg.JudgeUID,
			JudgeGID:         cfg.JudgeGID,
			ExecutorCorePath: cfg.ExecutorCorePath,
		},
		SelfPath:         cfg.SelfPath,
		UseUserNamespace: cfg.UseUserNamespace,
		TimeoutMargin:    cfg.TimeoutMargin,
	}

	result, err := RunOuter(outerCfg)
	if err != nil {
		return err
	}

	resp := respWire{
		Status:     string(result.Status),
		ReturnCode: result.ReturnCode,
		Time:       result.CPUTime.Seconds(),
		Memory:     result.PeakMemory,
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return &Error{Code: ErrUnknown, Message: "marshal resp.json: " + err.Error(), cause: err}
	}
	return os.WriteFile(respPath, encoded, 0o644)
}
