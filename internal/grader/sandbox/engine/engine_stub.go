//go:build !linux

package engine

import (
	"context"

	"gradex/pkg/errors"
)

type stubEngine struct{}

// NewEngine returns a stub on non-Linux platforms. Grading requires cgroup
// v2 and process groups, which only Linux provides.
func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Exec(ctx context.Context, spec Spec) (Result, error) {
	return Result{}, errors.New(errors.SandboxError).WithMessage("sandbox engine is only supported on linux")
}
