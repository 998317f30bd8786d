package supervisor

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/minekeeper/minekeeper/internal/detector"
	"github.com/minekeeper/minekeeper/internal/logger"
)

// Defaults for the lifecycle policy knobs.
const (
	DefaultStopCommand    = "stop"
	DefaultStopTimeout    = 15 * time.Second
	DefaultMaxRestarts    = 2
	DefaultRestartBackoff = 30 * time.Second
	DefaultMaxCommandLen  = 100
)

// Spec describes the one server this supervisor owns. Launch arguments are
// immutable once the process has been started; the supervisor treats the
// command line as opaque.
type Spec struct {
	Name           string               `json:"name"`
	Command        string               `json:"command"`         // command line to launch the server
	WorkDir        string               `json:"work_dir"`        // optional working dir
	Env            []string             `json:"env"`             // optional extra env (KEY=VALUE)
	StopCommand    string               `json:"stop_command"`    // console command for a graceful stop
	StopTimeout    time.Duration        `json:"stop_timeout"`    // escalation window before SIGKILL
	MaxRestarts    int                  `json:"max_restarts"`    // automatic relaunch budget after crashes
	RestartBackoff time.Duration        `json:"restart_backoff"` // fixed wait before an automatic relaunch
	SampleInterval time.Duration        `json:"sample_interval"` // memory sampling interval while online
	MaxCommandLen  int                  `json:"max_command_len"` // SendCommand length bound (exclusive)
	Markers        detector.Config      `json:"markers"`
	Console        logger.ConsoleConfig `json:"console"`
}

func (s Spec) withDefaults() Spec {
	if s.Name == "" {
		s.Name = "minecraft"
	}
	if s.StopCommand == "" {
		s.StopCommand = DefaultStopCommand
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}
	if s.MaxRestarts < 0 {
		s.MaxRestarts = 0
	} else if s.MaxRestarts == 0 {
		s.MaxRestarts = DefaultMaxRestarts
	}
	if s.RestartBackoff <= 0 {
		s.RestartBackoff = DefaultRestartBackoff
	}
	if s.MaxCommandLen <= 0 {
		s.MaxCommandLen = DefaultMaxCommandLen
	}
	return s
}

// BuildCommand constructs an *exec.Cmd for the spec's command line. It avoids
// invoking a shell when the command has no metacharacters, so signals reach
// the server directly instead of an intermediate sh. An empty command is a
// launch failure, not a process that silently exits clean.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return nil, errors.New("server command is empty")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr), nil
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...), nil
}
