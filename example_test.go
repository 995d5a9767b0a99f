//go:build linux

package sandbox_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	sandbox "github.com/libjudge/sandboxd"
)

// ExampleNewRunRequest demonstrates building a RunRequest with the
// functional-options constructor.
func ExampleNewRunRequest() {
	req := sandbox.NewRunRequest("/usr/bin/python3 main.py",
		sandbox.WithStdin("input.txt"),
		sandbox.WithTimeLimit(2*time.Second),
	)
	fmt.Println(req.ExecCommand)
	// Output: /usr/bin/python3 main.py
}

// ExampleSupervisor_Run demonstrates driving a worker through the
// one-at-a-time concurrency policy a Supervisor enforces.
func ExampleSupervisor_Run() {
	s := sandbox.NewSupervisor(sandbox.WorkerConfig{
		BinaryPath: "/usr/local/bin/judged",
		WorkDir:    "/var/lib/judge/work",
	}, zap.NewNop())

	err := s.Run(context.Background(), func(w *sandbox.Worker) error {
		if err := w.Clean(); err != nil {
			return err
		}
		req := sandbox.NewRunRequest("/sand/a.out", sandbox.WithTimeLimit(time.Second))
		_, err := w.Comm(req)
		return err
	})
	if err != nil {
		fmt.Println("Error running judgement:", err)
	}
}

// Example_errorHandling demonstrates using errors.Is() to classify a
// failure returned by the sandbox package.
func Example_errorHandling() {
	var err error = sandbox.ErrMountFailed

	switch {
	case errors.Is(err, sandbox.ErrCgroupUnavailable):
		fmt.Println("cgroup controller is unavailable")
	case errors.Is(err, sandbox.ErrMountFailed):
		fmt.Println("sandbox mount setup failed")
	case err != nil:
		fmt.Println("other error:", err)
	default:
		fmt.Println("success")
	}
	// Output: sandbox mount setup failed
}
