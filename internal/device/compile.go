package device

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ralt/dexscope/internal/models"
	"github.com/sirupsen/logrus"
)

// CompileModes are the compiler filters accepted by `cmd package compile -m`
var CompileModes = []string{
	"verify",
	"quicken",
	"space-profile",
	"space",
	"speed-profile",
	"speed",
	"everything-profile",
	"everything",
}

// DefaultCompileMode is used when no mode is given
const DefaultCompileMode = "speed-profile"

var packageNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)

// ValidateCompileMode checks mode against CompileModes
func ValidateCompileMode(mode string) error {
	for _, m := range CompileModes {
		if m == mode {
			return nil
		}
	}
	return models.NewError(models.ErrInvalidConfig, "unknown compile mode %q (want one of %s)", mode, strings.Join(CompileModes, ", "))
}

// ValidatePackageName checks that name is a dotted Java package name
func ValidatePackageName(name string) error {
	if !packageNameRe.MatchString(name) {
		return models.NewError(models.ErrInvalidConfig, "invalid package name %q", name)
	}
	return nil
}

// Dispatcher forwards compile requests to the Android runtime. It passes
// package identifiers through and does not track the outcome.
type Dispatcher struct {
	Runner Runner
}

// NewDispatcher creates a dispatcher running commands through r
func NewDispatcher(r Runner) *Dispatcher {
	return &Dispatcher{Runner: r}
}

// Compile recompiles pkg with mode. force recompiles even if the current
// artifacts are already up to date.
func (d *Dispatcher) Compile(ctx context.Context, pkg, mode string, force bool) (string, error) {
	if err := ValidatePackageName(pkg); err != nil {
		return "", err
	}
	return d.run(ctx, pkg, mode, force)
}

// CompileAll recompiles every package on the device with mode
func (d *Dispatcher) CompileAll(ctx context.Context, mode string, force bool) (string, error) {
	return d.run(ctx, "", mode, force)
}

func (d *Dispatcher) run(ctx context.Context, pkg, mode string, force bool) (string, error) {
	if mode == "" {
		mode = DefaultCompileMode
	}
	if err := ValidateCompileMode(mode); err != nil {
		return "", err
	}

	args := []string{"package", "compile", "-m", mode}
	if force {
		args = append(args, "-f")
	}
	target := pkg
	if pkg == "" {
		args = append(args, "-a")
		target = "all packages"
	} else {
		args = append(args, pkg)
	}

	logrus.Infof("Compiling %s with %s", target, mode)
	out, err := d.Runner.Run(ctx, "cmd", args...)
	if err != nil {
		return "", &models.ScanError{Type: models.ErrCommand, Path: pkg, Err: fmt.Errorf("failed to compile: %w", err)}
	}
	return strings.TrimSpace(out), nil
}
