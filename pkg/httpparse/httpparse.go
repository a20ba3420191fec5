// Package httpparse implements the pluggable incremental HTTP/1.1
// response parser described in spec.md §4.3: a parse/reset/destroy
// vtable that accumulates header fields/values into growing buffers,
// flushing complete headers into a bounded array, and transfers body
// ownership to the caller on completion.
//
// Grounded on the hand-rolled, not-library-based posture spec.md's
// Design Notes calls for around the signature document parser
// ("intentional: the schema is fixed... a targeted depth-aware key
// scanner, not a generic JSON library") — the same intent applies
// here: this is a purpose-built incremental scanner, not
// net/http-via-bufio.Reader, so Hull's outbound capability owns
// exactly the backpressure and size-ceiling behavior spec.md demands.
package httpparse

import (
	"fmt"

	"github.com/mindburn-labs/hull/pkg/herrors"
)

// Status is the result of one Parse call.
type Status int

const (
	StatusIncomplete Status = iota
	StatusOK
	StatusError
)

type state int

const (
	stateStatusLine state = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkCRLF
	stateDone
)

// Header is a single response header field/value pair.
type Header struct {
	Name  string
	Value string
}

// Limits bounds the parser's accumulation so an adversarial or
// misbehaving server cannot exhaust memory.
type Limits struct {
	MaxHeaderCount int
	MaxHeaderBytes int
	MaxBodyBytes   int
}

// DefaultLimits mirrors spec.md §6's bounded request/response header
// blocks: generous enough for ordinary traffic, small enough to cap
// a misbehaving peer.
var DefaultLimits = Limits{
	MaxHeaderCount: 100,
	MaxHeaderBytes: 64 * 1024,
	MaxBodyBytes:   8 * 1024 * 1024,
}

// Response is the accumulated parse result.
type Response struct {
	StatusCode int
	Headers    []Header
	Body       []byte
}

// Parser is the incremental parser vtable: Parse/Reset. There is no
// separate Destroy — Go's GC reclaims the buffers; Reset exists so
// one Parser can be reused across many requests without reallocating.
type Parser struct {
	limits Limits
	st     state
	buf    []byte // accumulation buffer for the current line/chunk-size token

	resp          Response
	contentLength int
	chunked       bool
	bodyWritten   int
	chunkRemain   int
}

// New returns a Parser with the given limits.
func New(limits Limits) *Parser {
	p := &Parser{limits: limits}
	p.Reset()
	return p
}

// Reset returns the parser to its initial state, ready for a new response.
func (p *Parser) Reset() {
	p.st = stateStatusLine
	p.buf = p.buf[:0]
	p.resp = Response{}
	p.contentLength = -1
	p.chunked = false
	p.bodyWritten = 0
	p.chunkRemain = 0
}

// Parse feeds additional bytes to the parser. It returns the status
// (incomplete/ok/error) and the number of bytes consumed from data.
// On StatusOK, the parser transfers body/header ownership to the
// caller via Response(); further Parse calls require Reset first.
func (p *Parser) Parse(data []byte) (Status, int, error) {
	consumed := 0
	for consumed < len(data) {
		switch p.st {
		case stateStatusLine:
			n, done, err := p.feedLine(data[consumed:])
			consumed += n
			if err != nil {
				return StatusError, consumed, err
			}
			if !done {
				return StatusIncomplete, consumed, nil
			}
			if err := p.parseStatusLine(string(p.buf)); err != nil {
				return StatusError, consumed, err
			}
			p.buf = p.buf[:0]
			p.st = stateHeaders

		case stateHeaders:
			n, done, err := p.feedLine(data[consumed:])
			consumed += n
			if err != nil {
				return StatusError, consumed, err
			}
			if !done {
				return StatusIncomplete, consumed, nil
			}
			line := string(p.buf)
			p.buf = p.buf[:0]
			if line == "" {
				if err := p.enterBody(); err != nil {
					return StatusError, consumed, err
				}
				if p.st == stateDone {
					return StatusOK, consumed, nil
				}
				continue
			}
			if err := p.addHeaderLine(line); err != nil {
				return StatusError, consumed, err
			}

		case stateBody:
			remaining := p.contentLength - p.bodyWritten
			take := len(data) - consumed
			if take > remaining {
				take = remaining
			}
			if err := p.appendBody(data[consumed : consumed+take]); err != nil {
				return StatusError, consumed, err
			}
			consumed += take
			p.bodyWritten += take
			if p.bodyWritten >= p.contentLength {
				p.st = stateDone
				return StatusOK, consumed, nil
			}
			return StatusIncomplete, consumed, nil

		case stateChunkSize:
			n, done, err := p.feedLine(data[consumed:])
			consumed += n
			if err != nil {
				return StatusError, consumed, err
			}
			if !done {
				return StatusIncomplete, consumed, nil
			}
			size, err := parseHexChunkSize(string(p.buf))
			if err != nil {
				return StatusError, consumed, err
			}
			p.buf = p.buf[:0]
			if size == 0 {
				p.st = stateDone
				return StatusOK, consumed, nil
			}
			p.chunkRemain = size
			p.st = stateChunkData

		case stateChunkData:
			take := len(data) - consumed
			if take > p.chunkRemain {
				take = p.chunkRemain
			}
			if err := p.appendBody(data[consumed : consumed+take]); err != nil {
				return StatusError, consumed, err
			}
			consumed += take
			p.chunkRemain -= take
			if p.chunkRemain == 0 {
				p.st = stateChunkCRLF
			} else {
				return StatusIncomplete, consumed, nil
			}

		case stateChunkCRLF:
			n, done, err := p.feedLine(data[consumed:])
			consumed += n
			if err != nil {
				return StatusError, consumed, err
			}
			if !done {
				return StatusIncomplete, consumed, nil
			}
			p.buf = p.buf[:0]
			p.st = stateChunkSize

		case stateDone:
			return StatusOK, consumed, nil
		}
	}
	return StatusIncomplete, consumed, nil
}

// Response returns the accumulated response. Valid only after Parse
// has returned StatusOK.
func (p *Parser) Response() Response {
	return p.resp
}

func (p *Parser) feedLine(data []byte) (consumed int, done bool, err error) {
	for i, b := range data {
		if b == '\n' {
			if len(p.buf) > 0 && p.buf[len(p.buf)-1] == '\r' {
				p.buf = p.buf[:len(p.buf)-1]
			}
			return i + 1, true, nil
		}
		if len(p.buf) >= p.limits.MaxHeaderBytes {
			return i, false, herrors.New(herrors.InvalidArgument, "httpparse: header line too long")
		}
		p.buf = append(p.buf, b)
	}
	return len(data), false, nil
}

func (p *Parser) parseStatusLine(line string) error {
	// "HTTP/1.1 200 OK" — split on spaces, doubling-bounded by the
	// header-line cap already enforced in feedLine.
	var proto string
	var code int
	n, err := fmt.Sscanf(line, "%s %d", &proto, &code)
	if err != nil || n < 2 {
		return herrors.New(herrors.InvalidArgument, "httpparse: malformed status line")
	}
	p.resp.StatusCode = code
	return nil
}

func (p *Parser) addHeaderLine(line string) error {
	if len(p.resp.Headers) >= p.limits.MaxHeaderCount {
		return herrors.New(herrors.InvalidArgument, "httpparse: too many headers")
	}
	idx := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return herrors.New(herrors.InvalidArgument, "httpparse: malformed header line")
	}
	name := line[:idx]
	value := trimLeadingSpace(line[idx+1:])
	p.resp.Headers = append(p.resp.Headers, Header{Name: name, Value: value})

	lname := toLower(name)
	if lname == "content-length" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			p.contentLength = n
		}
	} else if lname == "transfer-encoding" && toLower(value) == "chunked" {
		p.chunked = true
	}
	return nil
}

func (p *Parser) enterBody() error {
	if p.chunked {
		p.st = stateChunkSize
		return nil
	}
	if p.contentLength < 0 {
		p.contentLength = 0
	}
	if p.contentLength > p.limits.MaxBodyBytes {
		return herrors.New(herrors.InvalidArgument, "httpparse: body exceeds cap")
	}
	if p.contentLength == 0 {
		p.st = stateDone
		return nil
	}
	p.st = stateBody
	return nil
}

// appendBody accumulates b into the response body, growing the backing
// buffer by doubling. A chunked response has no declared total length
// up front (unlike the Content-Length case enterBody pre-rejects), so
// this is where the cap is actually enforced for it: per spec.md §4.3/
// §8, the parser raises an error on the exact byte that overflows
// rather than silently clipping the body and reporting success.
func (p *Parser) appendBody(b []byte) error {
	if len(p.resp.Body)+len(b) > p.limits.MaxBodyBytes {
		return herrors.New(herrors.InvalidArgument, "httpparse: body exceeds cap")
	}
	// Growth doubles with an overflow check, per spec.md §4.3.
	needed := len(p.resp.Body) + len(b)
	if needed > cap(p.resp.Body) {
		newCap := cap(p.resp.Body)
		if newCap == 0 {
			newCap = 4096
		}
		for newCap < needed {
			doubled := newCap * 2
			if doubled <= newCap {
				newCap = needed // overflow guard
				break
			}
			newCap = doubled
		}
		grown := make([]byte, len(p.resp.Body), newCap)
		copy(grown, p.resp.Body)
		p.resp.Body = grown
	}
	p.resp.Body = append(p.resp.Body, b...)
	return nil
}

func parseHexChunkSize(line string) (int, error) {
	n := 0
	for _, c := range line {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		case c == ';':
			return n, nil // chunk extension, ignore
		default:
			return 0, herrors.New(herrors.InvalidArgument, "httpparse: bad chunk size")
		}
		n = n*16 + v
	}
	return n, nil
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
