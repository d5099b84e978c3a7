package groundlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/opd-ai/groundlink/command"
	"github.com/opd-ai/groundlink/config"
	"github.com/opd-ai/groundlink/ftp"
	"github.com/opd-ai/groundlink/timeout"
	"github.com/opd-ai/groundlink/transport"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// statusInterval is how often Iterate logs queue depths.
const statusInterval = 5 * time.Second

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("system closed")

// Option customises a System before its engines are created.
type Option func(*System)

// WithTransport makes the System use tr instead of opening the configured
// endpoints. The System takes ownership and closes tr on Close.
func WithTransport(tr transport.Transport) Option {
	return func(s *System) {
		s.transport = tr
	}
}

// WithClock replaces the wall clock that drives timeouts and Run.
func WithClock(clk clock.Clock) Option {
	return func(s *System) {
		s.clock = clk
	}
}

// WithScope sets the metrics scope handed to every engine.
func WithScope(scope tally.Scope) Option {
	return func(s *System) {
		s.scope = scope
	}
}

// System ties a MAVLink transport to the command dispatcher and the file
// transfer engines. All engines are cooperative; Iterate or Run drives them.
type System struct {
	cfg       *config.Config
	transport transport.Transport
	clock     clock.Clock
	scope     tally.Scope

	scheduler  *timeout.Scheduler
	every      *timeout.CallEvery
	dispatcher *command.Dispatcher
	ftpClient  *ftp.Client
	ftpServer  *ftp.Server

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a System from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		cfg:     cfg,
		clock:   clock.New(),
		scope:   tally.NoopScope,
		running: true,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.transport == nil {
		tr, err := openTransport(cfg)
		if err != nil {
			return nil, err
		}
		s.transport = tr
	}

	if err := s.setupEngines(); err != nil {
		_ = s.transport.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"local":    s.transport.LocalAddr().String(),
		"target":   s.Target().String(),
		"server":   s.ftpServer != nil,
	}).Info("System created")

	return s, nil
}

func openTransport(cfg *config.Config) (transport.Transport, error) {
	endpoints, err := transport.ParseEndpoints(cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	conf := transport.NodeConfig{
		Endpoints:        endpoints,
		SystemID:         cfg.SystemID,
		ComponentID:      cfg.ComponentID,
		HeartbeatDisable: !cfg.Heartbeat,
	}
	if cfg.SigningPassphrase != "" {
		key, err := transport.DeriveSigningKey(cfg.SigningPassphrase, nil)
		if err != nil {
			return nil, err
		}
		conf.SigningKey = key
	}
	return transport.NewNodeTransport(conf)
}

func (s *System) setupEngines() error {
	cfg := s.cfg
	s.scheduler = timeout.NewScheduler(s.clock)
	s.every = timeout.NewCallEvery(s.clock)

	s.dispatcher = command.NewDispatcher(s.transport, s.scheduler, s.scope)
	if err := s.dispatcher.SetTimeout(cfg.Command.Timeout); err != nil {
		return fmt.Errorf("command timeout: %w", err)
	}
	if err := s.dispatcher.SetRetries(cfg.Command.Retries); err != nil {
		return fmt.Errorf("command retries: %w", err)
	}
	autopilot, err := cfg.Autopilot()
	if err != nil {
		return err
	}
	s.dispatcher.SetAutopilot(autopilot)

	target := transport.Address{SystemID: cfg.Target.SystemID, ComponentID: cfg.Target.ComponentID}
	s.ftpClient = ftp.NewClient(s.transport, s.scheduler, s.scope, target)
	if err := s.ftpClient.SetTimeout(cfg.FTP.Timeout); err != nil {
		return fmt.Errorf("ftp timeout: %w", err)
	}
	if err := s.ftpClient.SetRetries(cfg.FTP.Retries); err != nil {
		return fmt.Errorf("ftp retries: %w", err)
	}

	if cfg.FTP.Root != "" {
		s.ftpServer = ftp.NewServer(s.transport, s.scope)
		if err := s.ftpServer.SetRootDirectory(cfg.FTP.Root); err != nil {
			return err
		}
		if err := s.ftpServer.SetBurstPacketsPerTick(cfg.FTP.BurstPacketsPerTick); err != nil {
			return err
		}
	}

	s.every.Add(s.logStatus, statusInterval)
	return nil
}

// Commands returns the command dispatcher.
func (s *System) Commands() *command.Dispatcher {
	return s.dispatcher
}

// Files returns the FTP client addressed to the configured target.
func (s *System) Files() *ftp.Client {
	return s.ftpClient
}

// FileServer returns the FTP server, or nil when no root is configured.
func (s *System) FileServer() *ftp.Server {
	return s.ftpServer
}

// Transport returns the link the engines share.
func (s *System) Transport() transport.Transport {
	return s.transport
}

// Target returns the configured vehicle address.
func (s *System) Target() transport.Address {
	return transport.Address{SystemID: s.cfg.Target.SystemID, ComponentID: s.cfg.Target.ComponentID}
}

// AddPeriodic calls fn from Iterate every interval.
func (s *System) AddPeriodic(fn func(), interval time.Duration) timeout.EveryHandle {
	return s.every.Add(fn, interval)
}

// RemovePeriodic stops a callback added with AddPeriodic.
func (s *System) RemovePeriodic(h timeout.EveryHandle) {
	s.every.Remove(h)
}

// IterationInterval returns the recommended time between Iterate calls.
func (s *System) IterationInterval() time.Duration {
	return s.cfg.Interval
}

// IsRunning reports whether Close has not been called yet.
func (s *System) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Iterate performs one pass of the cooperative loop: queued work is
// started, burst chunks are sent and expired timeouts fire.
func (s *System) Iterate() {
	s.dispatcher.DoWork()
	s.ftpClient.DoWork()
	if s.ftpServer != nil {
		s.ftpServer.DoWork()
	}
	s.every.RunOnce()
	s.scheduler.RunOnce()
}

// Run calls Iterate every IterationInterval until ctx ends or Close is
// called.
func (s *System) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		case <-ticker.C:
			s.Iterate()
		}
	}
}

// Close stops Run, ends any server session and closes the transport.
func (s *System) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	if s.ftpServer != nil {
		_ = s.ftpServer.Close()
	}
	err := s.transport.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"local":    s.transport.LocalAddr().String(),
	}).Info("System closed")
	return err
}

func (s *System) logStatus() {
	logrus.WithFields(logrus.Fields{
		"function":         "logStatus",
		"pending_commands": s.dispatcher.Pending(),
		"pending_ftp":      s.ftpClient.Pending(),
		"timeouts":         s.scheduler.Len(),
	}).Debug("System status")
}
