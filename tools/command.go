package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/executor"
)

func newExecutor(cfg *config.Config, logger *slog.Logger) *executor.Executor {
	return &executor.Executor{
		KillOnTimeout: cfg.Shell.KillOnTimeout,
		Logger:        logger,
	}
}

// ExecuteShellTool runs a shell command under the configured wall-clock
// deadline. A command that outlives the deadline is detached and the partial
// output is returned with a short analysis appended.
type ExecuteShellTool struct {
	exec    *executor.Executor
	timeout time.Duration
}

func (t *ExecuteShellTool) Name() string { return "execute_shell" }
func (t *ExecuteShellTool) Description() string {
	return "Executes a shell command and returns its combined stdout and stderr. Commands running longer than the timeout return their partial output with a short analysis."
}
func (t *ExecuteShellTool) Params() []Param {
	return []Param{
		{Name: "command", Type: ParamString, Description: "The shell command to execute."},
	}
}

func (t *ExecuteShellTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	outcome := t.exec.Run(ctx, stringArg(args, "command"), t.timeout)
	return Ok(outcome.Report())
}

// InstallDepsTool installs a package with the configured package manager.
type InstallDepsTool struct {
	exec           *executor.Executor
	command        string
	defaultPackage string
	timeout        time.Duration
	logger         *slog.Logger
}

func (t *InstallDepsTool) Name() string { return "install_deps" }
func (t *InstallDepsTool) Description() string {
	return "Installs a package using the package manager. Returns true if the installation succeeded."
}
func (t *InstallDepsTool) Params() []Param {
	return []Param{
		{Name: "package_name", Type: ParamString, Description: "Name of the package to install.", Default: t.defaultPackage},
	}
}

func (t *InstallDepsTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	argv, err := shellwords.Parse(t.command)
	if err != nil {
		t.logger.Warn("Invalid install command", "command", t.command, "error", err)
		return Ok(false)
	}
	argv = append(argv, stringArg(args, "package_name"))

	outcome := t.exec.RunArgs(ctx, argv, t.timeout)
	if outcome.Err != nil || !outcome.Completed || outcome.ExitCode != 0 {
		t.logger.Warn("Error installing package",
			"argv", argv,
			"exit_code", outcome.ExitCode,
			"timed_out", outcome.WallClockExceeded,
			"error", outcome.Err,
		)
		return Ok(false)
	}
	return Ok(true)
}
