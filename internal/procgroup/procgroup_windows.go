//go:build windows

package procgroup

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// group on Windows has no job-object group-kill support; Stop terminates
// only the direct child process. Workers on this platform are expected not
// to fork descendants that outlive them.
type group struct {
	cmd     *exec.Cmd
	done    chan error
	mu      sync.Mutex
	stopped bool
	exited  bool
}

func Start(name string, arg []string, out io.Writer) (Group, error) {
	cmd := exec.Command(name, arg...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}

	g := &group{cmd: cmd, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		g.mu.Lock()
		g.exited = true
		g.mu.Unlock()
		g.done <- err
	}()
	return g, nil
}

func (g *group) Command() *exec.Cmd { return g.cmd }

func (g *group) Wait() <-chan error { return g.done }

func (g *group) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.exited
}

func (g *group) Stop(grace time.Duration) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	alreadyExited := g.exited
	g.mu.Unlock()

	if alreadyExited {
		return nil
	}

	_ = g.cmd.Process.Kill()
	<-g.done
	return nil
}
