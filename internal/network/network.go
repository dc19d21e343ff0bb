// Package network keeps the host associated with the wireless network the
// SMS gateway is reached through.
package network

import (
	"context"
	"os/exec"
)

// Connector reports and establishes upstream connectivity.
type Connector interface {
	// EnsureConnected returns nil once the link is up, or an error after a
	// bounded number of attempts.
	EnsureConnected(ctx context.Context) error
	// Connected reports the current link state without side effects.
	Connected(ctx context.Context) bool
}

// Always is a Connector for hosts whose connectivity is managed elsewhere
// (wired Ethernet, a supervisor, a container network).
type Always struct{}

func (Always) EnsureConnected(context.Context) error { return nil }
func (Always) Connected(context.Context) bool        { return true }

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
