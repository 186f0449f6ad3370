package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nilandasd/httpproxy/conf"
	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/contrib/transport"
	"github.com/nilandasd/httpproxy/pkg/x/runtime"
	"github.com/nilandasd/httpproxy/server/mod"
)

// AdminServer exposes the observability surface on its own listener:
// metrics, health probes, version, pprof. It never touches the cache or the
// upstream; the proxy behaves the same with it disabled.
type AdminServer struct {
	*http.Server

	log *log.Helper
}

// NewAdmin builds the admin HTTP server for bc.Server.AdminAddr.
func NewAdmin(bc *conf.Bootstrap) transport.Server {
	mux := http.NewServeMux()

	// profiles handler
	pprofConf := bc.Server.PProf
	if pprofConf == nil {
		pprofConf = &conf.ServerPProf{}
	}
	mod.HandlePProf(pprofConf.Username, pprofConf.Password, mux)
	// internal handlers
	mux.Handle("/favicon.ico", http.NotFoundHandler())
	// version info
	mux.Handle("/version", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(runtime.BuildInfo)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	// metrics
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.Handle("/healthz/startup-probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := []byte("ok")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	mux.Handle("/healthz/liveness-probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	mux.Handle("/healthz/readiness-probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	return &AdminServer{
		Server: &http.Server{
			Addr:    bc.Server.AdminAddr,
			Handler: mux,
		},
		log: log.NewHelper(log.GetLogger()),
	}
}

// Start implements transport.Server.
func (s *AdminServer) Start(ctx context.Context) error {
	s.log.Infof("admin server listening on %s", s.Addr)

	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop implements transport.Server.
func (s *AdminServer) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}
