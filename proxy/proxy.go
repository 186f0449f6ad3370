// Package proxy owns the upstream origin connection and the per-connection
// request handler.
package proxy

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nilandasd/httpproxy/contrib/log"
)

// Origin is the handler's view of the upstream: one byte-stream, plus a way
// to flag it broken. The accept loop redials a dead origin before the next
// client is dispatched; the handler itself never reconnects.
type Origin interface {
	Stream() io.ReadWriter
	MarkDead()
}

var _ Origin = (*Upstream)(nil)

// Upstream is the single long-lived TCP connection to the origin server.
// It is only touched from the sequential accept loop and the handler it
// dispatches, so no locking is needed beyond the default-instance guard.
type Upstream struct {
	addr   string
	dialer *net.Dialer
	log    *log.Helper

	conn net.Conn
	dead bool
}

// Option configures an Upstream.
type Option func(*Upstream)

// WithDialTimeout bounds the origin dial.
func WithDialTimeout(d time.Duration) Option {
	return func(u *Upstream) { u.dialer.Timeout = d }
}

// WithDialer replaces the dialer.
func WithDialer(d *net.Dialer) Option {
	return func(u *Upstream) { u.dialer = d }
}

// New builds an Upstream for the origin listening on the loopback port.
func New(port int, opts ...Option) *Upstream {
	u := &Upstream{
		addr: fmt.Sprintf("127.0.0.1:%d", port),
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		log: log.NewHelper(log.GetLogger()),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Ensure dials the origin when there is no live connection yet, or when the
// previous one was marked dead.
func (u *Upstream) Ensure() error {
	if u.conn != nil && !u.dead {
		return nil
	}
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}

	conn, err := u.dialer.Dial("tcp", u.addr)
	if err != nil {
		return fmt.Errorf("connect upstream %s: %w", u.addr, err)
	}

	u.log.Infof("connected upstream %s", u.addr)
	u.conn = conn
	u.dead = false
	return nil
}

// Stream implements Origin.
func (u *Upstream) Stream() io.ReadWriter {
	if u.conn == nil {
		return brokenStream{}
	}
	return u.conn
}

// MarkDead implements Origin. The connection stays open until the accept
// loop redials.
func (u *Upstream) MarkDead() {
	u.dead = true
	u.log.Warnf("upstream %s marked dead", u.addr)
}

// Close tears the connection down.
func (u *Upstream) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.dead = false
	return err
}

// brokenStream stands in for a never-established upstream connection.
type brokenStream struct{}

func (brokenStream) Read([]byte) (int, error)  { return 0, net.ErrClosed }
func (brokenStream) Write([]byte) (int, error) { return 0, net.ErrClosed }

var (
	mu              sync.Mutex
	defaultUpstream *Upstream
)

// SetDefault replaces the process-wide upstream.
func SetDefault(u *Upstream) {
	mu.Lock()
	defer mu.Unlock()

	defaultUpstream = u
}

// GetUpstream returns the process-wide upstream.
func GetUpstream() *Upstream {
	mu.Lock()
	defer mu.Unlock()

	return defaultUpstream
}
