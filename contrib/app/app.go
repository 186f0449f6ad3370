package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/contrib/transport"
)

// App supervises a set of transport servers for the lifetime of the process.
type App struct {
	opts options
}

type options struct {
	id          string
	name        string
	version     string
	stopTimeout time.Duration
	logger      log.Logger
	servers     []transport.Server
	signals     []os.Signal
}

// Option is an application option.
type Option func(*options)

// ID sets the instance id.
func ID(id string) Option { return func(o *options) { o.id = id } }

// Name sets the application name.
func Name(name string) Option { return func(o *options) { o.name = name } }

// Version sets the application version.
func Version(v string) Option { return func(o *options) { o.version = v } }

// StopTimeout sets the graceful-stop timeout.
func StopTimeout(d time.Duration) Option { return func(o *options) { o.stopTimeout = d } }

// Logger sets the application logger.
func Logger(l log.Logger) Option { return func(o *options) { o.logger = l } }

// Server registers transport servers to run.
func Server(srv ...transport.Server) Option {
	return func(o *options) { o.servers = append(o.servers, srv...) }
}

// New assembles an App.
func New(opts ...Option) *App {
	o := options{
		stopTimeout: 30 * time.Second,
		logger:      log.GetLogger(),
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{opts: o}
}

// Run starts every server and blocks until a signal arrives or any server
// fails, then stops the rest within the stop timeout.
func (a *App) Run() error {
	clog := log.NewHelper(a.opts.logger)
	clog.Infof("starting %s id=%s version=%s", a.opts.name, a.opts.id, a.opts.version)

	ctx, stop := signal.NotifyContext(context.Background(), a.opts.signals...)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.opts.servers {
		srv := srv
		eg.Go(func() error {
			return srv.Start(ctx)
		})
		eg.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), a.opts.stopTimeout)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	clog.Infof("%s stopped", a.opts.name)
	return nil
}
