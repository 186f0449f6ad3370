package proxy

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilandasd/httpproxy/contrib/log"
	"github.com/nilandasd/httpproxy/storage"
)

const (
	dateJan1 = "Mon, 01 Jan 2024 00:00:00 GMT"
	dateJan2 = "Tue, 02 Jan 2024 00:00:00 GMT"
)

type readWriter struct {
	io.Reader
	io.Writer
}

// fakeOrigin scripts the upstream: reads come from the canned byte stream,
// writes are captured for inspection.
type fakeOrigin struct {
	in   *bytes.Buffer
	out  *bytes.Buffer
	dead bool
}

func newFakeOrigin(script ...string) *fakeOrigin {
	return &fakeOrigin{
		in:  bytes.NewBufferString(strings.Join(script, "")),
		out: &bytes.Buffer{},
	}
}

func (f *fakeOrigin) Stream() io.ReadWriter { return readWriter{f.in, f.out} }
func (f *fakeOrigin) MarkDead()             { f.dead = true }

func originResponse(status, lastModified, body string) string {
	h := fmt.Sprintf("HTTP/1.1 %s\r\nContent-Length: %d\r\n", status, len(body))
	if lastModified != "" {
		h += "Last-Modified: " + lastModified + "\r\n"
	}
	return h + "\r\n" + body
}

func headResponse(lastModified string, contentLength int) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nLast-Modified: %s\r\n\r\n",
		contentLength, lastModified)
}

func runHandler(t *testing.T, cache *storage.Cache, origin Origin, maxFileSize int, requests ...string) *bytes.Buffer {
	t.Helper()

	h := NewHandler(cache, origin, maxFileSize, log.GetLogger())
	client := readWriter{
		Reader: strings.NewReader(strings.Join(requests, "")),
		Writer: &bytes.Buffer{},
	}
	h.Handle(client)
	return client.Writer.(*bytes.Buffer)
}

func TestColdGETThenWarmGETNoChange(t *testing.T) {
	resp := originResponse("200 OK", dateJan1, "HELLO")
	origin := newFakeOrigin(resp, headResponse(dateJan1, 5))
	cache := storage.NewCache(3, storage.FIFO)

	req := "GET /a HTTP/1.1\r\n\r\n"
	got := runHandler(t, cache, origin, 65536, req, req)

	ip := ResolveHostIP()
	synth := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nHost: %s\r\n\r\nHELLO", ip)
	assert.Equal(t, resp+synth, got.String())

	// origin saw a GET then a HEAD, not a second GET
	sent := origin.out.String()
	assert.Equal(t, 1, strings.Count(sent, "GET /a"))
	assert.Equal(t, fmt.Sprintf("%sHEAD /a HTTP/1.1\r\nHost: %s\r\n\r\n", req, ip), sent)

	e := cache.Lookup("a")
	require.NotNil(t, e)
	assert.Equal(t, "HELLO", string(e.Body()))
}

func TestStaleRevalidationRefetches(t *testing.T) {
	refetched := originResponse("200 OK", dateJan2, "WORLD!")
	origin := newFakeOrigin(
		originResponse("200 OK", dateJan1, "HELLO"),
		headResponse(dateJan2, 6),
		refetched,
	)
	cache := storage.NewCache(3, storage.FIFO)

	req := "GET /a HTTP/1.1\r\n\r\n"
	got := runHandler(t, cache, origin, 65536, req, req)

	assert.True(t, strings.HasSuffix(got.String(), refetched))
	assert.Equal(t, 2, strings.Count(origin.out.String(), "GET /a"))
	assert.Equal(t, 1, strings.Count(origin.out.String(), "HEAD /a"))

	e := cache.Lookup("a")
	require.NotNil(t, e)
	assert.Equal(t, "WORLD!", string(e.Body()))
	assert.True(t, e.SameFingerprint([]byte(dateJan2)))
}

func TestMiss404IsRelayedAndNotCached(t *testing.T) {
	notFound := originResponse("404 Not Found", "", "no such file")
	origin := newFakeOrigin(notFound)
	cache := storage.NewCache(3, storage.FIFO)

	got := runHandler(t, cache, origin, 65536, "GET /gone HTTP/1.1\r\n\r\n")

	assert.Equal(t, notFound, got.String())
	assert.Zero(t, cache.Len())
}

func TestMiss400ClosesConnection(t *testing.T) {
	bad := "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"
	origin := newFakeOrigin(bad, originResponse("200 OK", dateJan1, "HELLO"))
	cache := storage.NewCache(3, storage.FIFO)

	// the second request must never be processed
	got := runHandler(t, cache, origin, 65536,
		"GET /a HTTP/1.1\r\n\r\n", "GET /b HTTP/1.1\r\n\r\n")

	assert.Equal(t, bad, got.String())
	assert.Zero(t, cache.Len())
	assert.Equal(t, 1, strings.Count(origin.out.String(), "GET /"))
}

func TestRevalidation404EvictsEntry(t *testing.T) {
	notFound := originResponse("404 Not Found", "", "gone")
	origin := newFakeOrigin(originResponse("200 OK", dateJan1, "HELLO"), notFound)
	cache := storage.NewCache(3, storage.FIFO)

	req := "GET /a HTTP/1.1\r\n\r\n"
	got := runHandler(t, cache, origin, 65536, req, req)

	assert.True(t, strings.HasSuffix(got.String(), notFound))
	assert.Nil(t, cache.Lookup("a"))
}

func TestPUTInvalidatesEntry(t *testing.T) {
	putResp := "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n"
	origin := newFakeOrigin(originResponse("200 OK", dateJan1, "HELLO"), putResp)
	cache := storage.NewCache(3, storage.FIFO)

	got := runHandler(t, cache, origin, 65536,
		"GET /a HTTP/1.1\r\n\r\n",
		"PUT /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nxyz")

	assert.True(t, strings.HasSuffix(got.String(), putResp))
	assert.Nil(t, cache.Lookup("a"))
	assert.Contains(t, origin.out.String(), "PUT /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nxyz")
}

func TestHEADRelaysWithoutBody(t *testing.T) {
	headResp := headResponse(dateJan1, 5)
	origin := newFakeOrigin(headResp)
	cache := storage.NewCache(3, storage.FIFO)

	got := runHandler(t, cache, origin, 65536, "HEAD /a HTTP/1.1\r\n\r\n")

	assert.Equal(t, headResp, got.String())
}

func TestZeroCapacityBypassesCache(t *testing.T) {
	resp := originResponse("200 OK", dateJan1, "HELLO")
	origin := newFakeOrigin(resp)
	cache := storage.NewCache(0, storage.FIFO)

	got := runHandler(t, cache, origin, 65536, "GET /a HTTP/1.1\r\n\r\n")

	assert.Equal(t, resp, got.String())
	assert.Zero(t, cache.Len())
	// a bypass never revalidates
	assert.NotContains(t, origin.out.String(), "HEAD")
}

func TestSizeGateBoundaryIsInclusive(t *testing.T) {
	resp := originResponse("200 OK", dateJan1, "HELLO")
	origin := newFakeOrigin(resp)
	cache := storage.NewCache(3, storage.FIFO)

	// request Content-Length equal to the bound still takes the cacheable path
	got := runHandler(t, cache, origin, 0,
		"GET /a HTTP/1.1\r\nContent-Length: 0\r\n\r\n")

	assert.Equal(t, resp, got.String())
	assert.NotNil(t, cache.Lookup("a"))
}

func TestOversizedRequestBypasses(t *testing.T) {
	resp := originResponse("200 OK", dateJan1, "HELLO")
	origin := newFakeOrigin(resp)
	cache := storage.NewCache(3, storage.FIFO)

	got := runHandler(t, cache, origin, 10,
		"GET /big HTTP/1.1\r\nContent-Length: 11\r\n\r\n"+strings.Repeat("x", 11))

	assert.Equal(t, resp, got.String())
	assert.Zero(t, cache.Len())
	assert.Contains(t, origin.out.String(), strings.Repeat("x", 11))
}

func TestFIFOEvictionEndToEnd(t *testing.T) {
	origin := newFakeOrigin(
		originResponse("200 OK", dateJan1, "AAAA"),
		originResponse("200 OK", dateJan1, "BBBB"),
		originResponse("200 OK", dateJan1, "CCCC"),
	)
	cache := storage.NewCache(2, storage.FIFO)

	runHandler(t, cache, origin, 65536,
		"GET /a HTTP/1.1\r\n\r\n", "GET /b HTTP/1.1\r\n\r\n", "GET /c HTTP/1.1\r\n\r\n")

	assert.Nil(t, cache.Lookup("a"))
	assert.NotNil(t, cache.Lookup("b"))
	assert.NotNil(t, cache.Lookup("c"))
}

func TestLRUEvictionEndToEnd(t *testing.T) {
	origin := newFakeOrigin(
		originResponse("200 OK", dateJan1, "AAAA"),
		originResponse("200 OK", dateJan1, "BBBB"),
		originResponse("200 OK", dateJan1, "CCCC"),
	)
	cache := storage.NewCache(2, storage.LRU)

	runHandler(t, cache, origin, 65536,
		"GET /a HTTP/1.1\r\n\r\n", "GET /b HTTP/1.1\r\n\r\n", "GET /c HTTP/1.1\r\n\r\n")

	assert.Nil(t, cache.Lookup("a"))
	assert.NotNil(t, cache.Lookup("b"))
	assert.NotNil(t, cache.Lookup("c"))
}

func TestUpstreamFailureMarksDead(t *testing.T) {
	origin := newFakeOrigin() // empty script: header read fails immediately
	cache := storage.NewCache(3, storage.FIFO)

	runHandler(t, cache, origin, 65536, "GET /a HTTP/1.1\r\n\r\n")

	assert.True(t, origin.dead)
	assert.Zero(t, cache.Len())
}

func TestUnknownMethodIsIgnored(t *testing.T) {
	resp := originResponse("200 OK", dateJan1, "HELLO")
	origin := newFakeOrigin(resp)
	cache := storage.NewCache(3, storage.FIFO)

	// the DELETE is skipped, the following GET is served
	got := runHandler(t, cache, origin, 65536,
		"DELETE /a HTTP/1.1\r\n\r\n", "GET /a HTTP/1.1\r\n\r\n")

	assert.Equal(t, resp, got.String())
	assert.NotContains(t, origin.out.String(), "DELETE")
}
