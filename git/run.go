package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind says how a command ended
type Kind int

const (
	// Success means the command ran and exited 0
	Success Kind = iota
	// ProcessError means the command ran and exited non-zero
	ProcessError
	// LaunchError means the command could not be run at all
	LaunchError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ProcessError:
		return "process error"
	case LaunchError:
		return "launch error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is captured for every command, whichever way it ends
type Result struct {
	Kind Kind
	// Command is the command line as run, e.g. "git fetch origin"
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is set for LaunchError
	Err error
}

// Output returns stdout followed by stderr
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

const waitDelay = 5 * time.Second

// Runner runs git (or a stand-in binary) in a working directory
type Runner struct {
	// Binary defaults to "git"
	Binary string
}

func (r Runner) binary() string {
	if r.Binary == "" {
		return "git"
	}
	return r.Binary
}

// Run executes the binary (in the specified workingDir) with args and
// captures stdout and stderr. It never returns an error; failures are
// described by the Result.
func (r Runner) Run(ctx context.Context, workingDir string, args ...string) (res Result) {
	bin := r.binary()
	res.Command = strings.Join(append([]string{bin}, args...), " ")
	log.WithFields(log.Fields{
		"dir":     workingDir,
		"command": res.Command,
	}).Info("running")

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = os.Environ()
	cmd.Dir = workingDir
	// children that keep the pipes open must not outlive a cancelled context
	cmd.WaitDelay = waitDelay
	var o, e bytes.Buffer
	cmd.Stderr = &e
	cmd.Stdout = &o
	err := cmd.Run()
	res.Stdout = o.String()
	res.Stderr = e.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Kind = Success
	case ctx.Err() != nil:
		res.Kind = LaunchError
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: %v", res.Command, ctx.Err())
	case errors.As(err, &exitErr):
		res.Kind = ProcessError
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Kind = LaunchError
		res.ExitCode = -1
		res.Err = err
	}
	return
}
