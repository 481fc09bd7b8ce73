package exec_shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/davarch/ci-runner/internal/domain"
)

// Runner executes stage commands through `sh -c`, the same way the pipeline
// scripts it replaces did. Stdout and stderr are combined into one stream.
type Runner struct {
	shell string
}

func New() *Runner { return &Runner{shell: "sh"} }

func (r *Runner) Run(ctx context.Context, spec domain.CommandSpec) (domain.CommandResult, error) {
	cmd := exec.CommandContext(ctx, r.shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), flatten(spec.Env)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := domain.CommandResult{
		Command:  spec.Command,
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return res, fmt.Errorf("command %q: %w", spec.Command, ctx.Err())
		}
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("command %q: %w", spec.Command, err)
}

func flatten(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
