//go:build linux

package sandbox

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the environment-derived settings the worker and
// orchestrate binaries need at startup.
type Config struct {
	JudgedBinaryPath   string
	ExecutorCorePath   string
	WorkDir            string
	LangsTOMLPath      string
	CgroupRoot         string
	CgroupName         string
	JudgeUID           uint32
	JudgeGID           uint32
	UseUserNamespace   bool
	OuterTimeoutMargin int
}

// LoadConfig loads a .env file if present (missing is not an error, so
// production deployments can rely on ambient environment variables
// instead) and builds a Config from the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, &Error{Code: ErrInvalidRequest, Message: "load .env: " + err.Error(), cause: err}
	}

	cfg := Config{
		JudgedBinaryPath: envOr("JUDGED_BINARY_PATH", "/usr/local/bin/judged"),
		ExecutorCorePath: envOr("EXECUTOR_CORE_PATH", "/usr/local/bin/executor-core"),
		WorkDir:          envOr("JUDGE_WORK_DIR", "/var/lib/judge/work"),
		LangsTOMLPath:    envOr("JUDGE_LANGS_TOML", "/etc/judge/langs.toml"),
		CgroupRoot:       envOr("JUDGE_CGROUP_ROOT", "/sys/fs/cgroup"),
		CgroupName:       envOr("JUDGE_CGROUP_NAME", "lib-judge"),
	}

	uid, err := envUint32("JUDGE_UID", 1000)
	if err != nil {
		return Config{}, err
	}
	cfg.JudgeUID = uid

	gid, err := envUint32("JUDGE_GID", 1000)
	if err != nil {
		return Config{}, err
	}
	cfg.JudgeGID = gid

	margin, err := envInt("JUDGE_OUTER_TIMEOUT_MARGIN_SECONDS", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.OuterTimeoutMargin = margin

	cfg.UseUserNamespace = os.Getenv("JUDGE_USE_USER_NAMESPACE") == "1"

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, &Error{Code: ErrInvalidRequest, Message: "parse " + key + ": " + err.Error(), cause: err}
	}
	return uint32(v), nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Code: ErrInvalidRequest, Message: "parse " + key + ": " + err.Error(), cause: err}
	}
	return v, nil
}
