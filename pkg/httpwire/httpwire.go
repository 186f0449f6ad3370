// Package httpwire reads and picks apart the handful of HTTP/1.1 wire forms
// the proxy depends on: the CRLFCRLF-terminated header block, the request and
// status lines, and the Content-Length / Last-Modified fields. Matching is
// case-sensitive and anchored on the exact ASCII forms the paired origin
// produces.
package httpwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nilandasd/httpproxy/internal/constants"
)

// MaxHeaderSize bounds one header block, terminator included.
const MaxHeaderSize = 4096

// chunkSize bounds a single body read.
const chunkSize = 4096

var (
	ErrHeaderTooLarge = errors.New("httpwire: header exceeds 4096 bytes")
	ErrShortBody      = errors.New("httpwire: stream ended before body was complete")
	ErrMalformedLine  = errors.New("httpwire: malformed start line")

	// ErrWrite marks a relay failure on the destination stream, so callers
	// can tell a broken source from a broken sink.
	ErrWrite = errors.New("httpwire: write failed")
)

var headerTerminator = []byte("\r\n\r\n")

// ReadHeader reads one byte at a time from r into buf until the CRLFCRLF
// terminator, and returns the total byte count including the terminator.
// buf must be MaxHeaderSize long; it is zeroed first. Reading a byte at a
// time guarantees no bytes of the following body are consumed.
func ReadHeader(r io.Reader, buf []byte) (int, error) {
	clear(buf)

	n := 0
	for {
		if n >= len(buf) {
			return n, ErrHeaderTooLarge
		}
		rn, err := r.Read(buf[n : n+1])
		if rn == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return n, io.ErrUnexpectedEOF
			}
			return n, err
		}
		n += rn
		if n >= len(headerTerminator) && bytes.Equal(buf[n-4:n], headerTerminator) {
			return n, nil
		}
	}
}

// ContentLength returns the base-10 integer following the literal
// "Content-Length: " anchor, or 0 when the anchor is absent.
func ContentLength(buf []byte) int {
	i := bytes.Index(buf, []byte(constants.AnchorContentLength))
	if i < 0 {
		return 0
	}
	return atoi(buf[i+len(constants.AnchorContentLength):])
}

// LastModified returns a copy of the 29 bytes following the literal
// "Last-Modified: " anchor, or false when the anchor is absent or the
// block ends before the full date.
func LastModified(buf []byte) ([]byte, bool) {
	i := bytes.Index(buf, []byte(constants.AnchorLastModified))
	if i < 0 {
		return nil, false
	}
	start := i + len(constants.AnchorLastModified)
	if start+constants.LastModifiedLen > len(buf) {
		return nil, false
	}
	out := make([]byte, constants.LastModifiedLen)
	copy(out, buf[start:start+constants.LastModifiedLen])
	return out, true
}

// ParseRequestLine returns the method token and the request target without
// its leading slash.
func ParseRequestLine(buf []byte) (method, target string, err error) {
	line := firstLine(buf)
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return "", "", ErrMalformedLine
	}
	method = string(fields[0])
	target = string(bytes.TrimPrefix(fields[1], []byte("/")))
	return method, target, nil
}

// ParseStatusLine returns the status-code token of a response status line.
func ParseStatusLine(buf []byte) (string, error) {
	line := firstLine(buf)
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return "", ErrMalformedLine
	}
	return string(fields[1]), nil
}

// CollectBody reads exactly n bytes from r into dst, in chunks of at most
// 4096 bytes. dst must be at least n long. n == 0 succeeds without reading.
func CollectBody(r io.Reader, dst []byte, n int) error {
	read := 0
	for read < n {
		chunk := n - read
		if chunk > chunkSize {
			chunk = chunkSize
		}
		rn, err := r.Read(dst[read : read+chunk])
		if rn == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return ErrShortBody
			}
			return err
		}
		read += rn
	}
	return nil
}

// RelayBody moves exactly n bytes from r to w through scratch, writing each
// chunk as it arrives. n == 0 succeeds without touching either stream.
func RelayBody(r io.Reader, w io.Writer, scratch []byte, n int) error {
	read := 0
	for read < n {
		chunk := n - read
		if chunk > len(scratch) {
			chunk = len(scratch)
		}
		if chunk > chunkSize {
			chunk = chunkSize
		}
		rn, err := r.Read(scratch[:chunk])
		if rn == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return ErrShortBody
			}
			return err
		}
		read += rn
		if _, werr := w.Write(scratch[:rn]); werr != nil {
			return fmt.Errorf("%w: %v", ErrWrite, werr)
		}
	}
	return nil
}

// firstLine returns buf up to the first CR or LF, or up to the first NUL for
// a zero-padded header buffer.
func firstLine(buf []byte) []byte {
	end := len(buf)
	for i, b := range buf {
		if b == '\r' || b == '\n' || b == 0 {
			end = i
			break
		}
	}
	return buf[:end]
}

// atoi parses a leading base-10 integer the way the origin writes one:
// optional sign, then digits, stopping at the first other byte.
func atoi(buf []byte) int {
	i := 0
	neg := false
	if i < len(buf) && (buf[i] == '-' || buf[i] == '+') {
		neg = buf[i] == '-'
		i++
	}
	n := 0
	for ; i < len(buf) && buf[i] >= '0' && buf[i] <= '9'; i++ {
		n = n*10 + int(buf[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
