package stdio

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

// DefaultKillGrace is how long a terminated process may linger before it is killed.
const DefaultKillGrace = 5 * time.Second

// Config describes the process to launch.
type Config struct {
	// Path is the executable, resolved through PATH when it has no separator.
	Path string
	Args []string

	// Env is merged over the inherited environment; entries here win.
	Env map[string]string

	Dir string

	// KillGrace overrides DefaultKillGrace.
	KillGrace time.Duration
}

// Process is a line channel over the stdin/stdout of a child process.
// Stderr is not part of the protocol and is logged line by line at debug level.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	reader *bufio.Reader
	stderr *zapio.Writer
	grace  time.Duration

	log *zap.SugaredLogger

	closed  atomic.Bool
	done    chan struct{}
	waitErr error
}

// Start launches the process described by cfg. The process outlives ctx;
// only Close terminates it.
func Start(ctx context.Context, cfg Config) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, errors.New("executable path is empty")
	}

	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "look up %s", cfg.Path)
	}

	log := zap.S().With("module", "stdiorpc.stdio")

	cmd := exec.Command(path, cfg.Args...)
	cmd.Env = MergeEnv(os.Environ(), cfg.Env)
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "create stdin pipe")
	}

	// A plain os.Pipe keeps Wait from closing the read side under a pending read.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "create stdout pipe")
	}
	cmd.Stdout = stdoutW

	stderr := &zapio.Writer{
		Log:   log.Desugar().With(zap.String("stream", "stderr")),
		Level: zapcore.DebugLevel,
	}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, errors.Wrapf(err, "start %s", path)
	}
	stdoutW.Close()

	grace := cfg.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		reader: bufio.NewReaderSize(stdoutR, 1<<20),
		stderr: stderr,
		grace:  grace,
		log:    log.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}

	go p.reap()

	p.log.Infof("Process started %s %s", path, strings.Join(cfg.Args, " "))
	return p, nil
}

func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	p.stderr.Close()
	p.log.Debugf("Process exited: %v", p.waitErr)
	close(p.done)
}

// Pid returns the process id of the child.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the result of waiting for the child. Only valid after Done is closed.
func (p *Process) ExitErr() error {
	return p.waitErr
}

// Write writes p to the child's stdin. The pipe is unbuffered.
func (p *Process) Write(data []byte) (int, error) {
	return p.stdin.Write(data)
}

// ReadLine blocks until the child writes a full line, returning it with its '\n'.
// A trailing fragment without '\n' is returned on its own before io.EOF is reported.
func (p *Process) ReadLine() ([]byte, error) {
	line, err := p.reader.ReadBytes('\n')
	if errors.Is(err, io.EOF) && len(line) > 0 {
		return line, nil
	}
	if errors.Is(err, os.ErrClosed) {
		return nil, io.EOF
	}
	return line, err
}

// Close closes stdin and asks the child to terminate. It does not wait for the
// child to exit; a reaper kills it if it is still alive after the grace period.
func (p *Process) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.stdin.Close()

	select {
	case <-p.done:
	default:
		p.log.Infof("Terminating process")
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = p.cmd.Process.Kill()
		}
		go p.killAfterGrace()
	}

	return p.stdout.Close()
}

func (p *Process) killAfterGrace() {
	select {
	case <-p.done:
	case <-time.After(p.grace):
		p.log.Warnf("Process did not exit within %v, killing", p.grace)
		_ = p.cmd.Process.Kill()
	}
}

// MergeEnv returns base with overrides applied. Existing keys are replaced in
// place; new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+v)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// ParseEnv turns KEY=VALUE entries into a map. Entries without '=' are rejected.
func ParseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, kv := range entries {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, errors.Newf("invalid env entry %q, want KEY=VALUE", kv)
		}
		env[key] = value
	}
	return env, nil
}
