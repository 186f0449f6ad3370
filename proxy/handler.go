package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/metrics"
	"github.com/nilandasd/httpproxy/pkg/httpwire"
	"github.com/nilandasd/httpproxy/storage"
)

// Handler runs the per-connection request loop. For every client request it
// decides among a cacheable-GET miss, a cacheable-GET hit revalidated with a
// HEAD against the origin, and a plain relay for the other GET, PUT and HEAD
// requests. Requests with any other method are skipped.
type Handler struct {
	cache       *storage.Cache
	origin      Origin
	maxFileSize int
	hostIP      string
	logger      log.Logger
}

// NewHandler builds a Handler. The proxy's own IP is resolved once and
// reused for every synthesized Host line.
func NewHandler(cache *storage.Cache, origin Origin, maxFileSize int, logger log.Logger) *Handler {
	return &Handler{
		cache:       cache,
		origin:      origin,
		maxFileSize: maxFileSize,
		hostIP:      ResolveHostIP(),
		logger:      logger,
	}
}

// ResolveHostIP returns the dotted-quad of the machine's primary hostname.
// The value ends up in synthesized Host lines only, so resolution failures
// degrade to the loopback address.
func ResolveHostIP() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupIP(hostname)
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "127.0.0.1"
}

// Handle serves one accepted client connection to completion. The caller
// owns closing the client stream; returning ends the connection.
func (h *Handler) Handle(client io.ReadWriter) {
	clog := log.NewHelper(log.With(h.logger, "conn", uuid.NewString()))

	var buf1, buf2 [httpwire.MaxHeaderSize]byte

	for {
		n, err := httpwire.ReadHeader(client, buf1[:])
		if err != nil {
			clog.Debugf("client request ended: %v", err)
			return
		}

		method, target, err := httpwire.ParseRequestLine(buf1[:])
		if err != nil {
			clog.Warnf("malformed request line: %v", err)
			return
		}
		reqLen := httpwire.ContentLength(buf1[:])

		var again bool
		if method == "GET" && reqLen <= h.maxFileSize && h.cache.Cap() != 0 {
			if e := h.cache.Lookup(target); e == nil {
				again = h.missGET(clog, client, buf1[:], n, target)
			} else {
				again = h.hitGET(clog, client, buf1[:], buf2[:], n, target, e)
			}
		} else {
			switch method {
			case "GET":
				again = h.relay(clog, client, buf1[:], n, target, reqLen, "bypass", true)
			case "PUT":
				again = h.relay(clog, client, buf1[:], n, target, reqLen, "put", true)
			case "HEAD":
				again = h.relay(clog, client, buf1[:], n, target, reqLen, "head", false)
			default:
				clog.Debugf("ignoring %s /%s", method, target)
				again = true
			}
		}
		if !again {
			return
		}
	}
}

// missGET fetches a cacheable target the cache does not hold, relays the
// origin response to the client and admits the body.
func (h *Handler) missGET(clog *log.Helper, client io.ReadWriter, buf1 []byte, n int, target string) bool {
	metrics.MarkRequest("GET", "miss")
	metrics.CacheEvents.WithLabelValues("miss").Inc()

	sc := h.origin.Stream()
	if _, err := sc.Write(buf1[:n]); err != nil {
		return h.upstreamFailed(clog, "forward request", err)
	}
	rn, err := httpwire.ReadHeader(sc, buf1)
	if err != nil {
		return h.upstreamFailed(clog, "read response header", err)
	}
	code, err := httpwire.ParseStatusLine(buf1)
	if err != nil {
		clog.Warnf("malformed origin status line: %v", err)
		return false
	}

	switch code {
	case "404":
		if _, err := client.Write(buf1[:rn]); err != nil {
			return false
		}
		return h.relayOriginBody(clog, client, buf1, httpwire.ContentLength(buf1))
	case "400":
		_, _ = client.Write(buf1[:rn])
		return false
	}

	lm, ok := httpwire.LastModified(buf1)
	if !ok {
		clog.Warnf("origin response for /%s carries no Last-Modified, dropping connection", target)
		return false
	}
	cl := httpwire.ContentLength(buf1)
	body := make([]byte, cl)

	if _, err := client.Write(buf1[:rn]); err != nil {
		return false
	}
	if err := httpwire.CollectBody(sc, body, cl); err != nil {
		return h.upstreamFailed(clog, "collect body", err)
	}
	metrics.BodyBytes.WithLabelValues("origin").Add(float64(cl))
	if _, err := client.Write(body); err != nil {
		return false
	}
	metrics.BodyBytes.WithLabelValues("client").Add(float64(cl))

	h.cache.TouchAll()
	h.cache.Admit(storage.NewEntry(target, lm, body))
	clog.Debugf("cached /%s (%d bytes)", target, cl)
	return true
}

// hitGET revalidates a cached target with a synthesized HEAD and serves
// either the cached body or a fresh fetch.
func (h *Handler) hitGET(clog *log.Helper, client io.ReadWriter, buf1, buf2 []byte, n int, target string, e *storage.Entry) bool {
	metrics.MarkRequest("GET", "hit")
	metrics.CacheEvents.WithLabelValues("hit").Inc()

	sc := h.origin.Stream()
	headReq := fmt.Sprintf("HEAD /%s HTTP/1.1\r\nHost: %s\r\n\r\n", target, h.hostIP)
	if _, err := sc.Write([]byte(headReq)); err != nil {
		return h.upstreamFailed(clog, "send revalidation", err)
	}
	rn2, err := httpwire.ReadHeader(sc, buf2)
	if err != nil {
		return h.upstreamFailed(clog, "read revalidation header", err)
	}
	headLen := httpwire.ContentLength(buf2)
	code, err := httpwire.ParseStatusLine(buf2)
	if err != nil {
		clog.Warnf("malformed revalidation status line: %v", err)
		return false
	}

	if code == "404" || code == "400" {
		h.cache.Remove(target)
		clog.Debugf("revalidation returned %s, evicted /%s", code, target)
		if _, err := client.Write(buf2[:rn2]); err != nil {
			return false
		}
		if !h.relayOriginBody(clog, client, buf2, headLen) {
			return false
		}
		return code == "404" // a 400 also terminates the connection
	}

	lm, ok := httpwire.LastModified(buf2)
	if !ok {
		clog.Warnf("revalidation for /%s carries no Last-Modified, dropping connection", target)
		return false
	}

	h.cache.TouchEntry(e)

	if !e.SameFingerprint(lm) {
		metrics.CacheEvents.WithLabelValues("revalidate_miss").Inc()
		clog.Debugf("/%s outdated, refreshing cache", target)

		// re-issue the client's GET, still held in buf1
		if _, err := sc.Write(buf1[:n]); err != nil {
			return h.upstreamFailed(clog, "refetch", err)
		}
		rn, err := httpwire.ReadHeader(sc, buf1)
		if err != nil {
			return h.upstreamFailed(clog, "read refetch header", err)
		}
		cl := httpwire.ContentLength(buf1)
		body := make([]byte, cl)

		if _, err := client.Write(buf1[:rn]); err != nil {
			return false
		}
		if err := httpwire.CollectBody(sc, body, cl); err != nil {
			return h.upstreamFailed(clog, "collect refetch body", err)
		}
		metrics.BodyBytes.WithLabelValues("origin").Add(float64(cl))

		// the fingerprint comes from the HEAD response, the body from the GET
		e.Refresh(lm, body)

		if _, err := client.Write(body); err != nil {
			return false
		}
		metrics.BodyBytes.WithLabelValues("client").Add(float64(cl))
		return true
	}

	metrics.CacheEvents.WithLabelValues("revalidate_hit").Inc()
	clog.Debugf("/%s still fresh, serving cached body", target)

	// Content-Length is the value the HEAD just reported, which the proxy
	// has previously validated and holds.
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nHost: %s\r\n\r\n", headLen, h.hostIP)
	if _, err := client.Write([]byte(resp)); err != nil {
		return false
	}
	if _, err := client.Write(e.Body()); err != nil {
		return false
	}
	metrics.BodyBytes.WithLabelValues("client").Add(float64(len(e.Body())))
	return true
}

// relay passes a request through untouched: evict the key, forward request
// header and body upstream, then forward the origin response. HEAD
// responses carry no body.
func (h *Handler) relay(clog *log.Helper, client io.ReadWriter, buf1 []byte, n int, target string, reqLen int, route string, respBody bool) bool {
	metrics.MarkRequest(routeMethod(route), route)

	h.cache.Remove(target)

	sc := h.origin.Stream()
	if _, err := sc.Write(buf1[:n]); err != nil {
		return h.upstreamFailed(clog, "forward request", err)
	}
	if err := httpwire.RelayBody(client, sc, buf1, reqLen); err != nil {
		if errors.Is(err, httpwire.ErrWrite) {
			return h.upstreamFailed(clog, "relay request body", err)
		}
		clog.Debugf("relay request body: %v", err)
		return false
	}

	rn, err := httpwire.ReadHeader(sc, buf1)
	if err != nil {
		return h.upstreamFailed(clog, "read response header", err)
	}
	cl := httpwire.ContentLength(buf1)

	if _, err := client.Write(buf1[:rn]); err != nil {
		return false
	}
	if !respBody {
		return true
	}
	return h.relayOriginBody(clog, client, buf1, cl)
}

// relayOriginBody moves cl origin body bytes to the client through scratch,
// flagging the upstream dead when the origin side broke.
func (h *Handler) relayOriginBody(clog *log.Helper, client io.Writer, scratch []byte, cl int) bool {
	if err := httpwire.RelayBody(h.origin.Stream(), client, scratch, cl); err != nil {
		if errors.Is(err, httpwire.ErrWrite) {
			clog.Debugf("client went away mid-body: %v", err)
			return false
		}
		return h.upstreamFailed(clog, "relay response body", err)
	}
	metrics.BodyBytes.WithLabelValues("client").Add(float64(cl))
	return true
}

func (h *Handler) upstreamFailed(clog *log.Helper, op string, err error) bool {
	clog.Warnf("%s: upstream failed: %v", op, err)
	h.origin.MarkDead()
	return false
}

func routeMethod(route string) string {
	switch route {
	case "put":
		return "PUT"
	case "head":
		return "HEAD"
	default:
		return "GET"
	}
}
