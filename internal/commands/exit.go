package commands

import (
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/gitlab"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitTransient = 2
	ExitAuth      = 3
)

// ExitCode maps a command error to the process exit code. Authentication
// failures win over transient ones when both are wrapped.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	switch {
	case errors.Is(err, credential.ErrUnavailable),
		errors.Is(err, credential.ErrRejected),
		errors.Is(err, gitlab.ErrUnauthorized):
		return ExitAuth
	case gitlab.IsTransient(err):
		return ExitTransient
	default:
		return ExitError
	}
}
