//go:build linux

// Command executor is the standalone, one-shot CLI around the Outer
// Runner: executor [--stdin P] [--stdout P] [--stderr P] [--overlay]
// [--result P] [--tl SECS] -- CMD.... It exists for ad-hoc and
// integration-test use outside the judged worker loop; a re-exec of
// itself with sandbox.InnerDispatchArg runs as the Inner Runner, the
// same dispatch judged uses.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	sandbox "github.com/libjudge/sandboxd"
)

var (
	stdinPath        string
	stdoutPath       string
	stderrPath       string
	resultPath       string
	overlay          bool
	tlSeconds        float64
	useUserNamespace bool
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == sandbox.InnerDispatchArg {
		if err := sandbox.RunInnerDispatch(); err != nil {
			fmt.Fprintln(os.Stderr, "executor: inner dispatch:", err)
			os.Exit(1)
		}
		return
	}

	cmd := &cobra.Command{
		Use:           "executor [flags] -- CMD...",
		Short:         "Run one command inside a sandbox and report its outcome",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVar(&stdinPath, "stdin", "", "path, relative to /sand, to redirect the command's stdin from")
	cmd.Flags().StringVar(&stdoutPath, "stdout", "", "path, relative to /sand, to redirect the command's stdout to")
	cmd.Flags().StringVar(&stderrPath, "stderr", "", "path, relative to /sand, to redirect the command's stderr to")
	cmd.Flags().StringVar(&resultPath, "result", "", "write the RunResult as JSON to this path")
	cmd.Flags().BoolVar(&overlay, "overlay", false, "mount /sand copy-on-write instead of a plain bind mount")
	cmd.Flags().Float64Var(&tlSeconds, "tl", 10, "wall-clock time limit in seconds")
	cmd.Flags().BoolVar(&useUserNamespace, "user-ns", false, "also unshare a user namespace (needed when not already running as a uid that can chroot)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "executor:", err)
		os.Exit(125)
	}
}

func run(cmd *cobra.Command, args []string) error {
	dashAt := cmd.ArgsLenAtDash()
	if dashAt < 0 {
		return fmt.Errorf("missing mandatory -- separator before CMD")
	}
	cmdArgs := args[dashAt:]
	if len(cmdArgs) == 0 {
		return fmt.Errorf("missing CMD after --")
	}

	cfg, err := sandbox.LoadConfig()
	if err != nil {
		return err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return err
	}

	outerCfg := sandbox.OuterConfig{
		Inner: sandbox.InnerConfig{
			Req: sandbox.RunRequest{
				ExecCommand: strings.Join(cmdArgs, " "),
				Stdin:       stdinPath,
				Stdout:      stdoutPath,
				Stderr:      stderrPath,
				TimeLimit:   time.Duration(tlSeconds * float64(time.Second)),
				Overlay:     overlay,
			},
			WorkDir:          workDir,
			CgroupRoot:       cfg.CgroupRoot,
			CgroupName:       cfg.CgroupName,
			JudgeUID:         cfg.JudgeUID,
			JudgeGID:         cfg.JudgeGID,
			ExecutorCorePath: cfg.ExecutorCorePath,
		},
		SelfPath:         self,
		UseUserNamespace: useUserNamespace,
		TimeoutMargin:    time.Duration(cfg.OuterTimeoutMargin) * time.Second,
	}

	result, runErr := sandbox.RunOuter(outerCfg)
	if runErr != nil {
		return runErr
	}

	if resultPath != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(resultPath, encoded, 0o644); err != nil {
			return err
		}
	}

	if result.Status == sandbox.StatusTLE {
		os.Exit(124)
	}
	os.Exit(result.ReturnCode)
	return nil
}
