package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nilandasd/httpproxy/conf"
	"github.com/nilandasd/httpproxy/contrib/app"
	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/contrib/transport"
	"github.com/nilandasd/httpproxy/internal/constants"
	"github.com/nilandasd/httpproxy/proxy"
	"github.com/nilandasd/httpproxy/server"
	"github.com/nilandasd/httpproxy/storage"
)

var (
	id, _ = os.Hostname()

	// Version is the version of the app.
	Version string = "no-set"
	GitHash string = "no-set"
	Built   string = "0"
)

func init() {
	// init prometheus
	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("httpproxy_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	bc, err := conf.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "httpproxy: %v\n%s\n", err, conf.Usage)
		os.Exit(1)
	}

	log.SetLogger(log.With(
		log.NewLogger(
			log.WithLevel(log.ParseLevel(bc.Logger.Level)),
			log.WithPath(bc.Logger.Path),
			log.WithCaller(bc.Logger.Caller),
			log.WithRotate(bc.Logger.MaxSize, bc.Logger.MaxAge, bc.Logger.MaxBackups, bc.Logger.Compress),
		),
		"ts", log.Timestamp(time.RFC3339),
		"pid", os.Getpid(),
	))

	application, err := newApp(bc)
	if err != nil {
		log.Fatal(err)
	}

	if err := application.Run(); err != nil {
		log.Fatal(err)
	}
}

func newApp(bc *conf.Bootstrap) (*app.App, error) {
	stopTimeout := 30 * time.Second

	// graceful upgrade
	flip, err := tableflip.New(tableflip.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: stopTimeout,
	})
	if err != nil {
		return nil, err
	}

	// init cache
	cache := storage.NewCache(bc.Cache.Capacity, storage.ParsePolicy(bc.Cache.Policy))
	storage.SetDefault(cache)
	log.Infof("cache capacity %d, policy %s, max file size %d",
		cache.Cap(), cache.Policy(), bc.Cache.MaxFileSize)

	// init upstream
	upstream := proxy.New(bc.Upstream.ServerPort, proxy.WithDialTimeout(bc.Upstream.DialTimeout))
	proxy.SetDefault(upstream)
	if err := upstream.Ensure(); err != nil {
		// binding still proceeds; the accept loop retries before the
		// first dispatch
		log.Warnf("upstream not reachable yet: %v", err)
	}

	handler := proxy.NewHandler(cache, upstream, bc.Cache.MaxFileSize, log.GetLogger())

	servers := []transport.Server{
		server.NewServer(flip, bc, handler, upstream),
	}
	if bc.Server.AdminAddr != "" {
		servers = append(servers, server.NewAdmin(bc))
	}

	return app.New(
		app.ID(id),
		app.Name(constants.AppName),
		app.Version(Version),
		app.StopTimeout(stopTimeout),
		app.Logger(log.GetLogger()),
		app.Server(servers...),
	), nil
}
