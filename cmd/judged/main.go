//go:build linux

// Command judged is the long-lived worker process a Supervisor spawns
// and drives over the clean/comm/last line protocol. Re-exec'd with
// sandbox.InnerDispatchArg as its only argument, the same binary instead
// runs as the Inner Runner inside the namespace set an Outer Runner just
// built for it.
package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	sandbox "github.com/libjudge/sandboxd"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == sandbox.InnerDispatchArg {
		if err := sandbox.RunInnerDispatch(); err != nil {
			fmt.Fprintln(os.Stderr, "judged: inner dispatch:", err)
			os.Exit(1)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := sandbox.LoadConfig()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	self, err := os.Executable()
	if err != nil {
		logger.Fatal("resolve own executable path", zap.Error(err))
	}

	loopCfg := sandbox.WorkerLoopConfig{
		WorkDir:          cfg.WorkDir,
		JudgeUID:         cfg.JudgeUID,
		JudgeGID:         cfg.JudgeGID,
		CgroupRoot:       cfg.CgroupRoot,
		CgroupName:       cfg.CgroupName,
		ExecutorCorePath: cfg.ExecutorCorePath,
		SelfPath:         self,
		UseUserNamespace: cfg.UseUserNamespace,
		TimeoutMargin:    time.Duration(cfg.OuterTimeoutMargin) * time.Second,
	}

	logger.Info("judged starting", zap.String("work_dir", cfg.WorkDir))
	if err := sandbox.RunWorkerLoop(loopCfg, os.Stdin, os.Stdout); err != nil {
		logger.Error("worker loop exited", zap.Error(err))
		os.Exit(1)
	}
}
