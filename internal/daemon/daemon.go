// Package daemon wires the bridge together and owns the process lifecycle: account lock,
// command intake, session pump, reconnection, side surfaces and graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/craftbridge/internal/actions"
	"github.com/msageha/craftbridge/internal/bulk"
	"github.com/msageha/craftbridge/internal/config"
	"github.com/msageha/craftbridge/internal/events"
	"github.com/msageha/craftbridge/internal/goal"
	"github.com/msageha/craftbridge/internal/httpapi"
	"github.com/msageha/craftbridge/internal/lock"
	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/mirror"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/queue"
	"github.com/msageha/craftbridge/internal/reconnect"
	"github.com/msageha/craftbridge/internal/session"
	"github.com/msageha/craftbridge/internal/transport"
)

// Process exit codes.
const (
	ExitOK    = 0
	ExitError = 1
)

const busBuffer = 256

type Options struct {
	Config model.Config
	Driver session.Driver
	In     io.Reader
	Out    io.Writer
	Logger *zap.Logger
	// Level is adjusted when the watched config file changes logging.level.
	Level zap.AtomicLevel
	// Reload is how the config was loaded; its Path, when set, is watched.
	Reload config.Options
	// Signals replaces the process signal subscription.
	Signals <-chan os.Signal
	// ForceExit ends the process on a second signal. Defaults to os.Exit.
	ForceExit func(code int)
}

// Daemon is one bridge process.
type Daemon struct {
	opts    Options
	cfg     model.Config
	logger  *zap.Logger
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	fileLock   *lock.FileLock
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	transcript *events.Transcript
	bus        *events.Bus
	emitter    *events.Emitter
	goals      *goal.Registry
	flag       *bulk.Flag
	exec       *actions.Executor
	queue      *queue.Queue
	ctl        *reconnect.Controller
	mirror     *mirror.Mirror
	detach     func()
	http       *httpapi.Server
	group      *errgroup.Group

	mu        sync.Mutex
	gen       uint64
	dialled   session.Session
	ready     session.Session
	sessionID string

	exitOnce sync.Once
	exitCh   chan int
	shutdown sync.Once
}

func New(opts Options) (*Daemon, error) {
	if opts.Driver == nil {
		return nil, errors.New("session driver is required")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("command and event streams are required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ForceExit == nil {
		opts.ForceExit = os.Exit
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		opts:     opts,
		cfg:      opts.Config,
		logger:   opts.Logger.Named("daemon"),
		ctx:      ctx,
		cancel:   cancel,
		fileLock: lock.ForAccount(opts.Config.Lock.Dir, opts.Config.Session.Username),
		exitCh:   make(chan int, 1),
	}
	return d, nil
}

// Run starts the bridge and blocks until it should exit, returning the exit code.
// A non-nil error means the bridge never started.
func (d *Daemon) Run() (int, error) {
	// Step 1: account lock, before any connection is attempted
	if err := d.fileLock.TryLock(); err != nil {
		d.cancel()
		return ExitError, fmt.Errorf("account lock: %w", err)
	}
	d.started = time.Now()
	d.logger.Info("bridge starting",
		zap.Int("pid", os.Getpid()),
		zap.String("username", d.cfg.Session.Username),
		zap.String("server", d.cfg.Session.Address()))

	// Step 2: outbound path and action coordination
	if err := d.build(); err != nil {
		d.cleanup()
		return ExitError, err
	}

	// Step 3: side surfaces
	if err := d.startSurfaces(); err != nil {
		d.cleanup()
		return ExitError, err
	}

	// Step 4: command intake and signals
	go d.readCommands()
	go d.watchSignals()

	// Step 5: first connection; failures enter the backoff path
	go d.ctl.Start(d.ctx)

	code := <-d.exitCh
	d.Shutdown()
	return code, nil
}

func (d *Daemon) build() error {
	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = metrics.New(d.registry)

	if path := d.cfg.Transcript.Path; path != "" {
		t, err := events.OpenTranscript(path, d.cfg.Transcript.MaxBytes)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		d.transcript = t
	}
	d.bus = events.NewBus(busBuffer, d.opts.Logger.Named("bus"))
	d.emitter = events.NewEmitter(transport.NewEncoder(d.opts.Out), d.bus, d.transcript, d.opts.Logger.Named("emit"))

	d.goals = goal.NewRegistry(d.emitter.Emit, d.opts.Logger.Named("goal"), d.metrics)
	d.flag = &bulk.Flag{}
	d.exec = actions.NewExecutor(actions.Options{
		Config:  d.cfg,
		Session: d.current,
		Link:    d.link,
		Goals:   d.goals,
		Flag:    d.flag,
		Emit:    d.emitter.Emit,
		Quit:    d.quit,
		Logger:  d.opts.Logger.Named("actions"),
		Metrics: d.metrics,
	})
	d.queue = queue.New(d.ctx, queue.Options{
		Classify: d.exec.Classify,
		Run:      d.exec.Run,
		Emit:     d.emitter.Emit,
		Logger:   d.opts.Logger.Named("queue"),
		Metrics:  d.metrics,
	})
	d.exec.SetLane(d.queue)

	rc := d.cfg.Reconnect
	d.ctl = reconnect.New(reconnect.Options{
		MaxAttempts:   rc.MaxAttempts,
		Base:          rc.Base.Duration(),
		Cap:           rc.Cap.Duration(),
		FatalPatterns: rc.FatalPatterns,
		Dial:          d.dial,
		Cleanup:       d.cleanupSession,
		Exit:          d.requestExit,
		Emit:          d.emitter.Emit,
		Logger:        d.opts.Logger.Named("reconnect"),
		Metrics:       d.metrics,
	})
	return nil
}

func (d *Daemon) startSurfaces() error {
	var g errgroup.Group
	d.group = &g

	if url := d.cfg.Mirror.NATSURL; url != "" {
		m, err := mirror.Connect(url, d.cfg.Mirror.SubjectPrefix, d.cfg.Session.Username, d.opts.Logger.Named("mirror"))
		if err != nil {
			return err
		}
		d.mirror = m
		d.detach = m.Attach(d.bus)
		d.logger.Info("mirroring events", zap.String("url", url))
	}

	if addr := d.cfg.HTTP.Addr; addr != "" {
		srv, err := httpapi.NewServer(d.snapshot, d.registry, d.opts.Logger.Named("http"))
		if err != nil {
			return err
		}
		if err := srv.Listen(addr); err != nil {
			return err
		}
		d.http = srv
		g.Go(srv.Serve)
	}

	if d.opts.Reload.Path != "" {
		w := config.NewWatcher(d.opts.Reload, d.opts.Level, d.opts.Logger.Named("config"))
		g.Go(func() error { return w.Run(d.ctx) })
	}
	return nil
}

// readCommands feeds stdin to the dispatcher. The end of the stream ends the process.
func (d *Daemon) readCommands() {
	err := transport.Serve(d.ctx, d.opts.In, d.handle, d.malformed, d.opts.Logger.Named("transport"))
	switch {
	case err == nil:
		d.logger.Info("command stream ended, exiting")
		d.requestExit(ExitOK)
	case errors.Is(err, context.Canceled):
	default:
		d.logger.Error("command stream failed", zap.Error(err))
		d.requestExit(ExitError)
	}
}

func (d *Daemon) watchSignals() {
	sigCh := d.opts.Signals
	if sigCh == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case sig := <-sigCh:
		d.logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		d.requestExit(ExitOK)
	case <-d.ctx.Done():
		return
	}

	// Second signal forces exit
	sig := <-sigCh
	d.logger.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
	d.opts.ForceExit(ExitError)
}

// requestExit records the first exit code; later requests are ignored.
func (d *Daemon) requestExit(code int) {
	d.exitOnce.Do(func() {
		d.exitCh <- code
	})
}

// quit is the quit command: no reconnection after the session closes.
func (d *Daemon) quit() {
	d.ctl.Stop()
	d.requestExit(ExitOK)
}

// Shutdown stops intake, abandons in-flight work and releases resources. Safe to call
// more than once.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Info("shutdown started")

		// 1. No more reconnects, no more work
		if d.ctl != nil {
			d.ctl.Stop()
		}
		d.cancel()
		if d.goals != nil {
			d.goals.CancelAll()
		}
		if d.queue != nil {
			d.queue.Reset()
		}
		if s := d.takeSession(); s != nil {
			if err := s.Quit("shutdown"); err != nil {
				d.logger.Debug("quit session", zap.Error(err))
			}
		}

		timeout := d.cfg.Daemon.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// 2. Stop side surfaces
		if d.http != nil {
			if err := d.http.Shutdown(ctx); err != nil {
				d.logger.Warn("http shutdown", zap.Error(err))
			}
		}

		// 3. Drain in-flight with timeout
		done := make(chan struct{})
		go func() {
			if d.queue != nil {
				d.queue.Wait()
			}
			if d.group != nil {
				if err := d.group.Wait(); err != nil {
					d.logger.Warn("background task failed", zap.Error(err))
				}
			}
			close(done)
		}()
		select {
		case <-done:
			d.logger.Debug("all goroutines drained")
		case <-ctx.Done():
			d.logger.Warn("shutdown timeout, some operations may be incomplete", zap.Duration("timeout", timeout))
		}

		// 4. Cleanup
		d.cleanup()
		d.logger.Info("bridge stopped")
	})
}

func (d *Daemon) cleanup() {
	d.cancel()
	if d.detach != nil {
		d.detach()
	}
	if d.mirror != nil {
		d.mirror.Close()
	}
	if d.bus != nil {
		d.bus.Close()
	}
	if d.transcript != nil {
		if err := d.transcript.Close(); err != nil {
			d.logger.Warn("close transcript", zap.Error(err))
		}
	}
	if err := d.fileLock.Unlock(); err != nil {
		d.logger.Warn("release account lock", zap.Error(err))
	}
}

// Addr is the HTTP surface's bound address, empty when disabled.
func (d *Daemon) Addr() string {
	if d.http == nil {
		return ""
	}
	return d.http.Addr()
}

func (d *Daemon) snapshot() httpapi.Snapshot {
	st := d.ctl.Status()
	d.mu.Lock()
	connected, id := d.ready != nil, d.sessionID
	d.mu.Unlock()
	return httpapi.Snapshot{
		Username:         d.cfg.Session.Username,
		SessionState:     st.State,
		SessionID:        id,
		Connected:        connected,
		Reconnecting:     st.Reconnecting,
		Attempt:          st.Attempt,
		ActionBusy:       d.queue.Busy(),
		QueueLength:      d.queue.Len(),
		OutstandingGoals: d.goals.Outstanding(),
		Uptime:           time.Since(d.started).Round(time.Second).String(),
	}
}
