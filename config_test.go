//go:build linux

package sandbox

import (
	"os"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"JUDGED_BINARY_PATH", "EXECUTOR_CORE_PATH", "JUDGE_WORK_DIR",
		"JUDGE_LANGS_TOML", "JUDGE_CGROUP_ROOT", "JUDGE_CGROUP_NAME",
		"JUDGE_UID", "JUDGE_GID", "JUDGE_OUTER_TIMEOUT_MARGIN_SECONDS",
		"JUDGE_USE_USER_NAMESPACE",
	} {
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.CgroupName != "lib-judge" {
		t.Errorf("CgroupName = %q, want lib-judge", cfg.CgroupName)
	}
	if cfg.JudgeUID != 1000 {
		t.Errorf("JudgeUID = %d, want 1000", cfg.JudgeUID)
	}
	if cfg.OuterTimeoutMargin != 5 {
		t.Errorf("OuterTimeoutMargin = %d, want 5", cfg.OuterTimeoutMargin)
	}
	if cfg.UseUserNamespace {
		t.Error("UseUserNamespace should default to false")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JUDGE_CGROUP_NAME", "custom-cgroup")
	t.Setenv("JUDGE_UID", "2000")
	t.Setenv("JUDGE_USE_USER_NAMESPACE", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.CgroupName != "custom-cgroup" {
		t.Errorf("CgroupName = %q, want custom-cgroup", cfg.CgroupName)
	}
	if cfg.JudgeUID != 2000 {
		t.Errorf("JudgeUID = %d, want 2000", cfg.JudgeUID)
	}
	if !cfg.UseUserNamespace {
		t.Error("UseUserNamespace should be true")
	}
}
