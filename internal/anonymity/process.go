package anonymity

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessManager finds, starts and kills the proxy process.
type ProcessManager interface {
	Running(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Kill(ctx context.Context) error
}

// OSProcesses manages the proxy through the host process table. Processes are
// matched by executable name, so a proxy started outside this run is reused.
type OSProcesses struct {
	Binary string
	Args   []string
	Names  []string
}

func NewOSProcesses(cfg Config) *OSProcesses {
	return &OSProcesses{Binary: cfg.Binary, Args: cfg.Args, Names: cfg.ProcessNames}
}

func (p *OSProcesses) matching(ctx context.Context) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var out []*process.Process
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// Exited between listing and inspection.
			continue
		}
		if slices.Contains(p.Names, name) {
			out = append(out, proc)
		}
	}
	return out, nil
}

func (p *OSProcesses) Running(ctx context.Context) (bool, error) {
	procs, err := p.matching(ctx)
	if err != nil {
		return false, err
	}
	return len(procs) > 0, nil
}

// Start launches the proxy detached from ctx; it lives until Kill.
func (p *OSProcesses) Start(_ context.Context) error {
	cmd := exec.Command(p.Binary, p.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Binary, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (p *OSProcesses) Kill(ctx context.Context) error {
	procs, err := p.matching(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, proc := range procs {
		if err := proc.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", proc.Pid, err))
		}
	}
	return errors.Join(errs...)
}
