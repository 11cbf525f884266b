package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"jotihunt/internal/worker"
)

// Process is a started worker.
type Process interface {
	PID() int
	// Ready is closed once the worker reports that it accepts requests.
	Ready() <-chan struct{}
	// Wait blocks until the process exits.
	Wait() error
	Terminate() error
	Kill() error
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(ctx context.Context, slot int) (Process, error)
}

// ExecLauncher re-executes a binary as a worker. The listening socket is
// passed as fd 3 and the ready pipe as fd 4.
type ExecLauncher struct {
	Path     string
	Args     []string
	Listener *os.File
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   *slog.Logger
}

func (l *ExecLauncher) Launch(_ context.Context, slot int) (Process, error) {
	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create ready pipe: %w", err)
	}

	cmd := exec.Command(l.Path, l.Args...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.ExtraFiles = []*os.File{l.Listener, readyW}
	cmd.Env = append(os.Environ(),
		worker.EnvSlot+"="+strconv.Itoa(slot),
		worker.EnvListenerFD+"=3",
		worker.EnvReadyFD+"=4",
	)

	if err := cmd.Start(); err != nil {
		readyR.Close()
		readyW.Close()
		return nil, fmt.Errorf("start worker %d: %w", slot, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF
	// when the child dies.
	readyW.Close()

	p := &execProcess{
		cmd:   cmd,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.watchReady(readyR)
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	if l.Logger != nil {
		l.Logger.Info("worker started", "slot", slot, "pid", cmd.Process.Pid)
	}
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	ready chan struct{}
	done  chan struct{}
	err   error
}

func (p *execProcess) watchReady(r io.ReadCloser) {
	defer r.Close()
	line, err := bufio.NewReader(r).ReadString('\n')
	if err == nil && strings.TrimSpace(line) == strings.TrimSpace(worker.ReadyMessage) {
		close(p.ready)
	}
}

func (p *execProcess) PID() int               { return p.cmd.Process.Pid }
func (p *execProcess) Ready() <-chan struct{} { return p.ready }

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *execProcess) Terminate() error { return p.cmd.Process.Signal(syscall.SIGTERM) }
func (p *execProcess) Kill() error      { return p.cmd.Process.Kill() }
