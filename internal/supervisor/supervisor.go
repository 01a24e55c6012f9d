// Package supervisor tracks desired versus observed run state of the
// cooperating external processes. Start, stop and restart are serialized
// per service through the lock manager so concurrent operators cannot race
// the same service.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/locks"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/rs/zerolog/log"
)

// Start/stop results.
const (
	ResultStarted        = "started"
	ResultAlreadyRunning = "already-running"
	ResultStopped        = "stopped"
	ResultNotRunning     = "not-running"
)

var (
	ErrUnknownService = errors.New("unknown service name")
	// ErrBusy surfaces lock contention on a service; callers retry.
	ErrBusy = errors.New("service operation in progress")
)

// ServiceStatus is the observed state of one supervised process.
type ServiceStatus struct {
	PID           int    `json:"pid,omitempty"`
	Running       bool   `json:"running"`
	LastHeartbeat *int64 `json:"last_heartbeat,omitempty"`
}

// Service supervises the named external processes.
type Service struct {
	bus      *bus.Service
	locks    *locks.Service
	launcher Launcher

	owner       string
	pidDir      string
	lockTTLSec  int64
	stopTimeout time.Duration

	order    []string
	commands map[string][]string
}

// NewService creates a supervisor. commands maps service name to launch
// argv; the map's services define what may be supervised.
func NewService(busService *bus.Service, lockService *locks.Service, launcher Launcher, pidDir string, serviceOrder []string, commands map[string][]string, owner string) *Service {
	return &Service{
		bus:         busService,
		locks:       lockService,
		launcher:    launcher,
		owner:       owner,
		pidDir:      pidDir,
		lockTTLSec:  30,
		stopTimeout: 5 * time.Second,
		order:       serviceOrder,
		commands:    commands,
	}
}

// Start launches the named service. Idempotent: a service already observed
// running is a no-op reporting ResultAlreadyRunning. A failed launch emits
// an ERROR event and leaves desired state down; retry is the caller's call.
func (s *Service) Start(name string) (string, error) {
	if _, ok := s.commands[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}

	result := ""
	err := s.locks.WithLock(s.lockName(name), s.owner, s.lockTTLSec, func() error {
		var err error
		result, err = s.startLocked(name)
		return err
	})
	if errors.Is(err, locks.ErrHeld) {
		return "", ErrBusy
	}
	return result, err
}

// Stop signals the service to terminate and waits up to a bounded timeout,
// escalating to SIGKILL. Idempotent when the service is not running.
func (s *Service) Stop(name string) (string, error) {
	if _, ok := s.commands[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}

	result := ""
	err := s.locks.WithLock(s.lockName(name), s.owner, s.lockTTLSec, func() error {
		var err error
		result, err = s.stopLocked(name)
		return err
	})
	if errors.Is(err, locks.ErrHeld) {
		return "", ErrBusy
	}
	return result, err
}

// Restart stops then starts the service under one held lock, so a
// concurrent Start cannot slip between the two steps.
func (s *Service) Restart(name string) error {
	if _, ok := s.commands[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}

	err := s.locks.WithLock(s.lockName(name), s.owner, s.lockTTLSec, func() error {
		if _, err := s.stopLocked(name); err != nil {
			return err
		}
		_, err := s.startLocked(name)
		return err
	})
	if errors.Is(err, locks.ErrHeld) {
		return ErrBusy
	}
	return err
}

// Status returns the observed state of every supervised service.
func (s *Service) Status() (map[string]ServiceStatus, error) {
	statuses := make(map[string]ServiceStatus, len(s.order))
	for _, name := range s.order {
		status := ServiceStatus{}
		pid := s.readPid(name)
		if pid > 0 && s.launcher.Alive(pid) {
			status.PID = pid
			status.Running = true
		} else if pid > 0 {
			// Stale pidfile from a crashed process.
			s.clearPid(name)
		}
		if ts, ok, err := s.bus.Heartbeat(name); err == nil && ok {
			status.LastHeartbeat = &ts
		}
		statuses[name] = status
	}
	return statuses, nil
}

// RunningSummary returns the aggregate "running=N/M" count.
func (s *Service) RunningSummary() (string, error) {
	statuses, err := s.Status()
	if err != nil {
		return "", err
	}
	running := 0
	for _, status := range statuses {
		if status.Running {
			running++
		}
	}
	return fmt.Sprintf("running=%d/%d", running, len(s.order)), nil
}

// Services returns the supervised service names in start order.
func (s *Service) Services() []string {
	return append([]string(nil), s.order...)
}

func (s *Service) startLocked(name string) (string, error) {
	if pid := s.readPid(name); pid > 0 && s.launcher.Alive(pid) {
		return ResultAlreadyRunning, nil
	}
	s.clearPid(name)

	pid, err := s.launcher.Launch(name, s.commands[name])
	if err != nil {
		_, _ = s.bus.Emit("svc."+name+".start", types.LevelError, map[string]interface{}{
			"service": name,
			"error":   err.Error(),
			"message": "service failed to start",
		}, "")
		return "", fmt.Errorf("failed to start %s: %w", name, err)
	}

	if err := s.writePid(name, pid); err != nil {
		return "", err
	}

	if !s.launcher.Alive(pid) {
		s.clearPid(name)
		_, _ = s.bus.Emit("svc."+name+".start", types.LevelError, map[string]interface{}{
			"service": name,
			"pid":     pid,
			"message": "service exited immediately after launch",
		}, "")
		return "", fmt.Errorf("service %s exited immediately", name)
	}

	_, _ = s.bus.Emit("svc."+name+".start", types.LevelInfo, map[string]interface{}{
		"service": name,
		"pid":     pid,
	}, "")
	log.Info().Str("component", "supervisor").Str("service", name).Int("pid", pid).Msg("service started")
	return ResultStarted, nil
}

func (s *Service) stopLocked(name string) (string, error) {
	pid := s.readPid(name)
	if pid <= 0 || !s.launcher.Alive(pid) {
		s.clearPid(name)
		return ResultNotRunning, nil
	}

	if err := s.launcher.Signal(pid, syscall.SIGTERM); err != nil {
		return "", fmt.Errorf("failed to signal %s: %w", name, err)
	}

	deadline := time.Now().Add(s.stopTimeout)
	for time.Now().Before(deadline) {
		if !s.launcher.Alive(pid) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if s.launcher.Alive(pid) {
		_ = s.launcher.Signal(pid, syscall.SIGKILL)
		_, _ = s.bus.Emit("svc."+name+".stop", types.LevelWarn, map[string]interface{}{
			"service": name,
			"pid":     pid,
			"message": "service did not stop within timeout, killed",
		}, "")
	} else {
		_, _ = s.bus.Emit("svc."+name+".stop", types.LevelInfo, map[string]interface{}{
			"service": name,
			"pid":     pid,
		}, "")
	}

	s.clearPid(name)
	log.Info().Str("component", "supervisor").Str("service", name).Int("pid", pid).Msg("service stopped")
	return ResultStopped, nil
}

func (s *Service) lockName(name string) string {
	return "svc." + name
}

func (s *Service) pidfile(name string) string {
	safe := strings.ReplaceAll(name, "/", "_")
	return filepath.Join(s.pidDir, safe+".pid")
}

func (s *Service) readPid(name string) int {
	raw, err := os.ReadFile(s.pidfile(name))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		s.clearPid(name)
		return 0
	}
	return pid
}

func (s *Service) writePid(name string, pid int) error {
	if err := os.MkdirAll(s.pidDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.pidfile(name), []byte(strconv.Itoa(pid)), 0o644)
}

func (s *Service) clearPid(name string) {
	_ = os.Remove(s.pidfile(name))
}
