// Package device talks to the Android package manager: it lists installed
// packages, reads the dexopt state and asks the runtime to recompile.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner executes a device command and returns its output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the local host, which is the device itself
// when dexscope runs in an on-device shell
type ExecRunner struct{}

// NewExecRunner creates a runner for local commands
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args and returns its combined output
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	logrus.Debugf("Running %s %s", name, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return string(out), nil
}

// ADBRunner forwards commands to a device over adb shell
type ADBRunner struct {
	Runner Runner

	// Serial selects the device when several are attached
	Serial string
}

// NewADBRunner creates a runner for the device with the given serial
func NewADBRunner(serial string) *ADBRunner {
	return &ADBRunner{Runner: NewExecRunner(), Serial: serial}
}

// Run executes name with args through adb shell
func (r *ADBRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var adbArgs []string
	if r.Serial != "" {
		adbArgs = append(adbArgs, "-s", r.Serial)
	}
	adbArgs = append(adbArgs, "shell", name)
	adbArgs = append(adbArgs, args...)
	return r.Runner.Run(ctx, "adb", adbArgs...)
}
