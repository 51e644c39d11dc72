package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/moyoez/imagerestore/tool"
)

// DefaultWipeCommand erases every filesystem and partition-table signature.
// The device path is appended as the last argument.
const DefaultWipeCommand = "wipefs --all --force"

// Runner executes an external command line.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// CommandRunner runs commands with os/exec and logs what it ran.
type CommandRunner struct{}

func (CommandRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	tool.DefaultLogger.Debugf("[Device] EXEC: %s", strings.Join(argv, " "))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		tool.DefaultLogger.Debugf("[Device] OUTPUT: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", argv[0], err)
	}
	return nil
}

// NoopRunner logs commands without executing them. Useful for dry runs
// against image files.
type NoopRunner struct{}

func (NoopRunner) Run(_ context.Context, argv []string) error {
	tool.DefaultLogger.Infof("[Device] NOOP: %s", strings.Join(argv, " "))
	return nil
}

// wipeArgv splits the configured wipe command and appends the device path.
func wipeArgv(command, path string) []string {
	if strings.TrimSpace(command) == "" {
		command = DefaultWipeCommand
	}
	return append(strings.Fields(command), path)
}

// EnsureDevPrefix turns "sdb" into "/dev/sdb". Paths that already look like
// paths are returned unchanged.
func EnsureDevPrefix(name string) string {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, ".") {
		return name
	}
	if !strings.ContainsRune(name, '/') && !strings.Contains(name, ".") {
		return "/dev/" + name
	}
	return name
}
