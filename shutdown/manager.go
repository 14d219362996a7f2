package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"multiangle/core"
	"multiangle/logging"
)

// DefaultTimeout bounds the cleanup phase.
const DefaultTimeout = 10 * time.Second

// Manager owns the run context. The first SIGINT or SIGTERM cancels it so the
// runner stops between angles; a second one exits immediately with the
// signal's exit code. Cleanup functions run from Shutdown.
//
// Usage:
//
//	m := shutdown.NewManager(context.Background(), logger)
//	m.Start()
//	defer m.Shutdown()
//	m.Register("history-db", 20, func(ctx context.Context) error { return db.Close() })
//	summary, err := runner.Run(m.Context(), path, params)
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	stopped  bool
	received os.Signal

	ctx    context.Context
	cancel context.CancelFunc

	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
	done     chan struct{}

	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
	exit   func(code int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the cleanup deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewManager creates a Manager whose context derives from parent.
func NewManager(parent context.Context, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		done:     make(chan struct{}),
		notify:   signal.Notify,
		stop:     signal.Stop,
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		code := core.ExitCodeForSignal(m.Signal())
		m.logger.Warn("second signal received, exiting now", zap.Int("exit_code", code))
		m.logger.Sync()
		m.exit(code)
	})
	return m
}

// Context is cancelled on the first signal or when the parent is cancelled.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Signal returns the first signal received, or nil.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// Register adds a cleanup function; lower priorities run first.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered cleanup", zap.String("name", name), zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go m.loop()
}

func (m *Manager) loop() {
	for {
		select {
		case sig := <-m.sigChan:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(sig os.Signal) {
	m.mu.Lock()
	if m.received == nil {
		m.received = sig
	}
	m.mu.Unlock()

	if m.signals.Increment() == 1 {
		m.logger.Warn("signal received, finishing current angle then stopping (repeat to force)",
			zap.String("signal", sig.String()))
		m.cancel()
	}
}

// Shutdown stops signal handling and runs the registered cleanup functions
// under the configured timeout. Later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	if started {
		m.stop(m.sigChan)
		close(m.done)
	}
	defer m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Debug("running cleanup", zap.Strings("handlers", m.registry.Names()))
	if err := m.registry.Run(ctx); err != nil {
		m.logger.Warn("cleanup finished with errors", zap.Error(err))
		return err
	}
	return nil
}
