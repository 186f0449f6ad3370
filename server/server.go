package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cloudflare/tableflip"

	"github.com/nilandasd/httpproxy/conf"
	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/contrib/transport"
	"github.com/nilandasd/httpproxy/proxy"
)

// TCPServer accepts client connections and hands each to the request
// handler, one at a time. There is no parallelism: a connection is served
// to completion before the next accept, so cache state changes are totally
// ordered.
type TCPServer struct {
	flip     *tableflip.Upgrader
	config   *conf.Server
	handler  *proxy.Handler
	upstream *proxy.Upstream
	listener net.Listener
	log      *log.Helper
}

// NewServer builds the accept-loop server.
func NewServer(flip *tableflip.Upgrader, bc *conf.Bootstrap, handler *proxy.Handler, upstream *proxy.Upstream) transport.Server {
	return &TCPServer{
		flip:     flip,
		config:   bc.Server,
		handler:  handler,
		upstream: upstream,
		log:      log.NewHelper(log.GetLogger()),
	}
}

// Start listens on the client port and serves until the listener closes.
// A dead upstream is redialed before each dispatch; when that fails the
// server gives up, per the startup contract.
func (s *TCPServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.ClientPort)

	if err := s.listen(addr); err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.log.Infof("caching proxy listening on %s", addr)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warnf("accept: %v", err)
			continue
		}

		if err := s.upstream.Ensure(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("unable to connect with server: %w", err)
		}

		s.handler.Handle(conn)
		_ = conn.Close()
	}
}

// Stop closes the listener and the upstream connection. An in-flight client
// connection is not waited for; its next upstream read or write fails.
func (s *TCPServer) Stop(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return s.upstream.Close()
}

func (s *TCPServer) listen(addr string) error {
	if s.flip != nil {
		ln, err := s.flip.Listen("tcp", addr)
		if err != nil {
			return err
		}
		s.listener = ln
		if err := s.flip.Ready(); err != nil {
			s.log.Warnf("upgrader ready: %v", err)
		}
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}
