package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"jotihunt/internal/config"
)

// Environment set by the supervisor on every worker it starts.
const (
	EnvSlot       = "JOTIHUNT_WORKER_SLOT"
	EnvListenerFD = "JOTIHUNT_LISTENER_FD"
	EnvReadyFD    = "JOTIHUNT_READY_FD"
)

// ReadyMessage is written to the ready pipe once the worker accepts requests.
const ReadyMessage = "ready\n"

// Run is the body of the worker process. Without a supervisor it listens on
// the configured port itself.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if slot := os.Getenv(EnvSlot); slot != "" {
		logger = logger.With("slot", slot)
	}

	ln, err := Listener(cfg.Server.Addr(), os.Getenv)
	if err != nil {
		return err
	}
	defer ln.Close()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx, ln, func() error {
		pipe, err := readyPipe(os.Getenv)
		if err != nil || pipe == nil {
			return err
		}
		defer pipe.Close()
		return signalReady(pipe)
	})
}

// Listener returns the listening socket passed down by the supervisor, or a
// new one on addr when none was passed.
func Listener(addr string, getenv func(string) string) (net.Listener, error) {
	v := getenv(EnvListenerFD)
	if v == "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		return ln, nil
	}

	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("%s: invalid descriptor %q", EnvListenerFD, v)
	}
	return listenerFromFile(os.NewFile(uintptr(fd), "listener"))
}

// listenerFromFile wraps f as a listener and closes f; the listener keeps its
// own duplicate of the descriptor.
func listenerFromFile(f *os.File) (net.Listener, error) {
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("inherit listener: %w", err)
	}
	return ln, nil
}

func readyPipe(getenv func(string) string) (*os.File, error) {
	v := getenv(EnvReadyFD)
	if v == "" {
		return nil, nil
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("%s: invalid descriptor %q", EnvReadyFD, v)
	}
	return os.NewFile(uintptr(fd), "ready"), nil
}

func signalReady(w io.Writer) error {
	if _, err := io.WriteString(w, ReadyMessage); err != nil {
		return fmt.Errorf("signal ready: %w", err)
	}
	return nil
}
