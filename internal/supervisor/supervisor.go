// Package supervisor owns the lifecycle of the one supervised server process:
// launch, readiness detection from console output, bounded crash recovery,
// and graceful-then-forced shutdown.
//
// All state transitions happen on a single run-loop goroutine. Output
// scanners, the exit waiter and policy timers funnel their effects through
// the loop's event channel, so the Offline/Starting/Online/Stopping value has
// exactly one writer.
//
// Invariant: a process handle exists if and only if state is Starting, Online
// or Stopping. Ready is never true while Offline, and the state is never
// Online before the readiness marker has been observed.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/minekeeper/minekeeper/internal/detector"
	"github.com/minekeeper/minekeeper/internal/history"
	"github.com/minekeeper/minekeeper/internal/metrics"
	"github.com/minekeeper/minekeeper/internal/sampler"
)

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evCommand
	evLine
	evExit
	evKillNow
	evQuit
)

type event struct {
	kind    eventKind
	text    string
	match   detector.Match
	exitErr error
	reply   chan error
}

// Supervisor drives the lifecycle state machine for one server process.
type Supervisor struct {
	spec Spec
	det  *detector.Detector
	smp  *sampler.Sampler
	log  *slog.Logger

	events chan event
	done   chan struct{}

	// Snapshot mirror for Status(). The run loop writes, readers RLock.
	mu        sync.RWMutex
	state     State
	ready     bool
	restarts  int
	pid       int
	startedAt time.Time
	rss       uint64
	sinks     []history.Sink

	// Run-loop-owned fields. Never touched outside the loop.
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	launchedAt time.Time
	killTimer  *time.Timer
	killC      <-chan time.Time
	backoff    *time.Timer
	backoffC   <-chan time.Time
}

// New creates a supervisor and starts its run loop. The server itself is not
// launched until Start is called.
func New(spec Spec, log *slog.Logger) (*Supervisor, error) {
	spec = spec.withDefaults()
	det, err := detector.New(spec.Markers)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		spec:   spec,
		det:    det,
		log:    log.With("server", spec.Name),
		events: make(chan event, 64),
		done:   make(chan struct{}),
		state:  StateOffline,
	}
	s.smp = sampler.New(spec.SampleInterval, s.observeRSS, s.log)
	go s.run()
	return s, nil
}

// SetHistory configures the audit sinks. Safe to call before Start.
func (s *Supervisor) SetHistory(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Start launches the server. Fails with ErrAlreadyRunning unless the state is
// Offline. A manual Start resets the restart budget and cancels any relaunch
// still pending from a previous crash. Completion of startup is asynchronous:
// the state moves to Online when the readiness marker is observed.
func (s *Supervisor) Start() error { return s.send(event{kind: evStart}) }

// Stop initiates the graceful-then-forced shutdown protocol. Fails with
// ErrAlreadyOffline when nothing is running; in that case a pending automatic
// relaunch is still cancelled, so a stop always means "stay down".
func (s *Supervisor) Stop() error { return s.send(event{kind: evStop}) }

// SendCommand forwards one console command to the server. It is a silent
// no-op unless the server is Online and the text is shorter than the
// configured bound; no error is surfaced for rejected commands.
func (s *Supervisor) SendCommand(text string) error {
	return s.send(event{kind: evCommand, text: text})
}

func (s *Supervisor) send(ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrShutDown
	}
	select {
	case err := <-ev.reply:
		return err
	case <-s.done:
		return ErrShutDown
	}
}

// CommandLimit returns the exclusive upper bound on SendCommand text length.
func (s *Supervisor) CommandLimit() int { return s.spec.MaxCommandLen }

// Status returns a snapshot. Pure read, no side effects.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Name:     s.spec.Name,
		State:    s.state.String(),
		Ready:    s.ready,
		Running:  s.pid != 0,
		PID:      s.pid,
		Restarts: s.restarts,
		RSSBytes: s.rss,
	}
	if s.pid != 0 {
		st.StartedAt = s.startedAt
		st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	return st
}

// Shutdown stops the server and terminates the run loop. It honors ctx as a
// hard ceiling: when ctx expires before the escalation protocol finishes, the
// process group is killed outright so the daemon can exit.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrAlreadyOffline) && !errors.Is(err, ErrShutDown) {
		s.log.Warn("stop during shutdown failed", "error", err)
	}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for s.Status().Running {
		select {
		case <-ctx.Done():
			_ = s.send(event{kind: evKillNow})
			// Give the exit waiter a moment to reap before tearing down.
			time.Sleep(100 * time.Millisecond)
			return s.quit()
		case <-tick.C:
		}
	}
	return s.quit()
}

func (s *Supervisor) quit() error {
	err := s.send(event{kind: evQuit})
	if errors.Is(err, ErrShutDown) {
		return nil
	}
	return err
}

// run is the single control loop. Every state transition happens here.
func (s *Supervisor) run() {
	for {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case evStart:
				ev.reply <- s.handleStart()
			case evStop:
				ev.reply <- s.handleStop()
			case evCommand:
				s.handleCommand(ev.text)
				ev.reply <- nil
			case evLine:
				s.handleLine(ev.match, ev.text)
			case evExit:
				s.handleExit(ev.exitErr)
			case evKillNow:
				s.killProcessGroup()
				ev.reply <- nil
			case evQuit:
				s.cancelKillTimer()
				s.cancelBackoff()
				s.smp.Stop()
				ev.reply <- nil
				close(s.done)
				return
			}
		case <-s.killC:
			s.killC = nil
			s.log.Warn("graceful stop window elapsed, killing server", "timeout", s.spec.StopTimeout)
			s.killProcessGroup()
		case <-s.backoffC:
			s.backoffC = nil
			s.backoff = nil
			s.autoRestart()
		}
	}
}

func (s *Supervisor) handleStart() error {
	if s.stateNow() != StateOffline {
		return ErrAlreadyRunning
	}
	// Manual intent overrides a crash budget exhausted or still counting
	// down: the counter bounds automatic relaunches only.
	s.cancelBackoff()
	s.setRestarts(0)
	return s.launch()
}

// launch spawns the process and wires up scanners and the exit waiter.
// Used by both manual Start and the crash recovery path.
func (s *Supervisor) launch() error {
	cmd, err := s.spec.BuildCommand()
	if err != nil {
		s.log.Error("failed to launch server", "error", err)
		return err
	}
	if s.spec.WorkDir != "" {
		cmd.Dir = s.spec.WorkDir
	}
	if len(s.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), s.spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return err
	}
	outW, errW, werr := s.spec.Console.Writers(s.spec.Name)
	if werr != nil {
		s.log.Warn("console capture unavailable", "error", werr)
	}

	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		// Launch failure: no process was created, so the state stays
		// Offline and the caller must retry explicitly.
		s.log.Error("failed to launch server", "error", err)
		return err
	}

	s.cmd = cmd
	s.stdin = stdin
	s.launchedAt = time.Now()
	pid := cmd.Process.Pid

	s.mu.Lock()
	s.pid = pid
	s.startedAt = s.launchedAt
	s.ready = false
	s.rss = 0
	s.mu.Unlock()

	s.setState(StateStarting)
	s.log.Info("server launched", "pid", pid)
	metrics.IncStart(s.spec.Name)
	s.emit(history.EventLaunch, 0, "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.drain(stdout, false, outW)
	}()
	go func() {
		defer wg.Done()
		s.drain(stderr, true, errW)
	}()
	go func() {
		wg.Wait()
		s.events <- event{kind: evExit, exitErr: cmd.Wait()}
	}()
	return nil
}

// maxConsoleLineBytes bounds how much of a single console line is kept for
// capture and classification. The stream itself is always drained in full:
// a stalled pipe can hang the child, so oversized lines are truncated, never
// allowed to abort reading.
const maxConsoleLineBytes = 256 * 1024

// drain reads one output stream line by line, teeing lines to the capture
// writer and forwarding only marker matches to the run loop. Classification
// happens here so the loop's pace can never back-pressure the child's pipe.
func (s *Supervisor) drain(r io.Reader, isStderr bool, w io.WriteCloser) {
	if w != nil {
		defer func() { _ = w.Close() }()
	}
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 0, 4096)
	truncated := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 {
			if room := maxConsoleLineBytes - len(buf); room > 0 {
				if room < len(chunk) {
					chunk = chunk[:room]
					truncated = true
				}
				buf = append(buf, chunk...)
			} else {
				truncated = true
			}
		}
		if err == nil && isPrefix {
			// Oversized line: keep consuming fragments until the line ends.
			continue
		}
		if err != nil && len(buf) == 0 {
			return
		}
		line := string(buf)
		buf = buf[:0]
		if truncated {
			truncated = false
			s.log.Warn("console line truncated", "limit_bytes", maxConsoleLineBytes)
		}
		if w != nil {
			_, _ = w.Write(append([]byte(line), '\n'))
		}
		if m := s.det.Classify(line, isStderr); m.Class != detector.ClassNone {
			s.events <- event{kind: evLine, match: m, text: line}
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) handleLine(m detector.Match, line string) {
	switch m.Class {
	case detector.ClassReady:
		if s.stateNow() != StateStarting {
			return
		}
		s.mu.Lock()
		s.ready = true
		s.restarts = 0
		pid := s.pid
		s.mu.Unlock()
		s.setState(StateOnline)
		s.smp.Start(pid)
		elapsed := time.Since(s.launchedAt)
		s.log.Info("server ready", "marker", m.Marker, "elapsed", elapsed)
		metrics.ObserveStartToReady(s.spec.Name, elapsed.Seconds())
		s.emit(history.EventReady, 0, m.Marker)
	case detector.ClassBridge:
		s.log.Info("crossplay bridge online", "marker", m.Marker)
		s.emit(history.EventBridge, 0, m.Marker)
	case detector.ClassFatal:
		// Diagnostic only. Failure is decided by the exit code, not by log
		// content, to avoid false positives from benign warnings.
		s.log.Warn("server reported fatal condition", "line", line)
	}
}

func (s *Supervisor) handleStop() error {
	switch s.stateNow() {
	case StateOffline:
		// A crash-relaunch may still be pending; stopping while offline
		// cancels it so the operator's intent to stay down wins.
		s.cancelBackoff()
		return ErrAlreadyOffline
	case StateStopping:
		return nil
	}

	s.setState(StateStopping)
	s.smp.Stop()

	graceful := false
	if s.stdin != nil {
		if _, err := io.WriteString(s.stdin, s.spec.StopCommand+"\n"); err == nil {
			graceful = true
			s.log.Info("graceful stop requested", "command", s.spec.StopCommand)
		} else {
			s.log.Warn("stop command write failed, signaling instead", "error", err)
		}
	}
	if !graceful {
		s.signalProcessGroup(syscall.SIGTERM)
	}

	// Arm the escalation timer. Cancelled when the exit is observed; left to
	// fire otherwise, so a stop never hangs on a misbehaving child.
	s.cancelKillTimer()
	s.killTimer = time.NewTimer(s.spec.StopTimeout)
	s.killC = s.killTimer.C
	return nil
}

func (s *Supervisor) handleCommand(text string) {
	if s.stateNow() != StateOnline || s.stdin == nil {
		return
	}
	if text == "" || len(text) >= s.spec.MaxCommandLen {
		return
	}
	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		s.log.Debug("console command write failed", "error", err)
		return
	}
	s.log.Debug("console command dispatched", "command", text)
}

// handleExit is the single sink for process termination, voluntary or not.
func (s *Supervisor) handleExit(exitErr error) {
	prev := s.stateNow()
	code := exitCode(exitErr)

	// Cancelling the escalation timer here is correctness-critical: a stale
	// kill must never fire against a relaunched process.
	s.cancelKillTimer()
	s.smp.Stop()
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	s.cmd = nil

	s.mu.Lock()
	s.ready = false
	s.pid = 0
	s.rss = 0
	restarts := s.restarts
	s.mu.Unlock()
	s.setState(StateOffline)

	if code == 0 {
		s.setRestarts(0)
		s.log.Info("server exited cleanly")
		metrics.IncStop(s.spec.Name)
		s.emit(history.EventStop, 0, "")
		return
	}
	if prev == StateStopping {
		// Forced or signal-terminated during shutdown; still a stop.
		s.log.Info("server terminated during shutdown", "exit_code", code)
		metrics.IncStop(s.spec.Name)
		s.emit(history.EventStop, code, "")
		return
	}

	// Crash while Starting or Online: recovery policy decides.
	metrics.IncCrash(s.spec.Name)
	if restarts < s.spec.MaxRestarts {
		s.setRestarts(restarts + 1)
		s.log.Warn("server crashed, relaunch scheduled",
			"exit_code", code,
			"attempt", restarts+1,
			"max_restarts", s.spec.MaxRestarts,
			"backoff", s.spec.RestartBackoff)
		metrics.IncAutoRestart(s.spec.Name)
		s.emit(history.EventCrash, code, "")
		s.backoff = time.NewTimer(s.spec.RestartBackoff)
		s.backoffC = s.backoff.C
		return
	}
	s.log.Error("server crashed, max restarts reached; manual start required",
		"exit_code", code, "restarts", restarts)
	s.emit(history.EventGiveUp, code, "max restarts reached")
}

// autoRestart fires when the backoff timer elapses after a crash.
func (s *Supervisor) autoRestart() {
	if s.stateNow() != StateOffline {
		return
	}
	s.log.Info("relaunching server after crash")
	if err := s.launch(); err != nil {
		s.log.Error("automatic relaunch failed", "error", err)
	}
}

func (s *Supervisor) signalProcessGroup(sig syscall.Signal) {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-s.cmd.Process.Pid, sig)
}

func (s *Supervisor) killProcessGroup() { s.signalProcessGroup(syscall.SIGKILL) }

func (s *Supervisor) cancelKillTimer() {
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
		s.killC = nil
	}
}

func (s *Supervisor) cancelBackoff() {
	if s.backoff != nil {
		s.backoff.Stop()
		s.backoff = nil
		s.backoffC = nil
		s.log.Info("pending relaunch cancelled")
	}
}

func (s *Supervisor) stateNow() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	metrics.RecordStateTransition(s.spec.Name, from.String(), to.String())
	metrics.SetCurrentState(s.spec.Name, from.String(), false)
	metrics.SetCurrentState(s.spec.Name, to.String(), true)
	s.log.Debug("state transition", "from", from.String(), "to", to.String())
}

func (s *Supervisor) setRestarts(n int) {
	s.mu.Lock()
	s.restarts = n
	s.mu.Unlock()
}

func (s *Supervisor) observeRSS(rss uint64) {
	s.mu.Lock()
	s.rss = rss
	s.mu.Unlock()
	metrics.SetResidentMemory(s.spec.Name, float64(rss))
}

// emit fans the event out to the history sinks off the run loop, so a slow
// sink cannot stall lifecycle handling.
func (s *Supervisor) emit(t history.EventType, exitCode int, detail string) {
	s.mu.RLock()
	sinks := append([]history.Sink(nil), s.sinks...)
	rec := history.Record{
		Name:     s.spec.Name,
		PID:      s.pid,
		State:    s.state.String(),
		ExitCode: exitCode,
		Restarts: s.restarts,
		Detail:   detail,
	}
	s.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, h := range sinks {
			if err := h.Send(ctx, evt); err != nil {
				s.log.Warn("history sink send failed", "error", err)
			}
		}
	}()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if c := ee.ExitCode(); c >= 0 {
			return c
		}
		// Killed by signal, no portable exit code.
		return -1
	}
	return -1
}

func closeAll(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}
