// Package proc supervises the child MCP server process and owns its three
// pipes. No other package touches the process handle or its streams.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/mcp-bridge/internal/logx"
)

// ErrNotRunning is returned by I/O calls when no child process is alive.
var ErrNotRunning = errors.New("child process not running")

// terminateGrace is how long Terminate waits after SIGTERM before killing.
const terminateGrace = 5 * time.Second

// Supervisor manages one child process at a time: spawn, line I/O on
// stdin/stdout, stderr draining, and bounded termination.
type Supervisor struct {
	log zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// New returns an idle supervisor.
func New() *Supervisor {
	return &Supervisor{log: logx.Log.With().Str("component", "proc").Logger()}
}

// Start launches the executable with the given arguments and wires its pipes.
// Stderr is drained to the log for the life of the process.
func (s *Supervisor) Start(command string, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("spawn %s: previous child still attached", command)
	}
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	go s.drainStderr(stderr)
	s.log.Info().Str("command", command).Strs("args", args).Int("pid", cmd.Process.Pid).Msg("child started")
	return nil
}

// WriteLine writes b followed by a newline to the child's stdin in a single
// write. Pipes are unbuffered on our side, so no explicit flush is needed.
func (s *Supervisor) WriteLine(b []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	if _, err := stdin.Write(buf); err != nil {
		return fmt.Errorf("write to child: %w", err)
	}
	return nil
}

// ReadLine blocks until one newline-terminated line arrives on the child's
// stdout, returning it without the terminator. io.EOF means the child closed
// its end; a partial line at EOF is discarded as unusable.
func (s *Supervisor) ReadLine() ([]byte, error) {
	s.mu.Lock()
	stdout := s.stdout
	s.mu.Unlock()
	if stdout == nil {
		return nil, ErrNotRunning
	}
	line, err := stdout.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read from child: %w", err)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// Pid returns the child's process id, or 0 when none is running.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Terminate closes the child's stdin, sends SIGTERM, and waits up to
// terminateGrace for exit before killing. It is idempotent and releases the
// process handle and pipes on every path.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	s.mu.Unlock()
	if cmd == nil {
		return
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		s.log.Debug().AnErr("wait", err).Int("pid", cmd.Process.Pid).Msg("child exited")
	case <-time.After(terminateGrace):
		_ = cmd.Process.Kill()
		<-done
		s.log.Warn().Int("pid", cmd.Process.Pid).Msg("child killed after grace period")
	}
}

func (s *Supervisor) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.log.Debug().Str("stream", "stderr").Msg(sc.Text())
	}
}
