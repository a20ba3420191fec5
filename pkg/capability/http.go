package capability

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/httpparse"
	"github.com/mindburn-labs/hull/pkg/sandbox"
)

// HTTP is the outbound HTTP client capability, per spec.md §4.2: parse
// URL, check the manifest's host allowlist, connect with a bounded
// timeout, speak HTTP/1.1 with Connection: close, and parse the
// response incrementally with pkg/httpparse rather than a
// general-purpose client library.
type HTTP struct {
	policy         *sandbox.Policy
	connectTimeout time.Duration
	limits         httpparse.Limits
}

// NewHTTP returns an HTTP capability gated by policy's host allowlist.
func NewHTTP(policy *sandbox.Policy) *HTTP {
	return &HTTP{
		policy:         policy,
		connectTimeout: 10 * time.Second,
		limits:         httpparse.DefaultLimits,
	}
}

// Response is the result of an outbound request.
type Response struct {
	StatusCode int
	Headers    []httpparse.Header
	Body       []byte
}

// Request performs method against rawURL, sending headers and body,
// and returns the parsed response. Every stage fails closed:
// CRLF-bearing method/header/host, unsupported scheme, bad port, and
// a host outside the manifest allowlist are all rejected before a
// socket is opened.
func (h *HTTP) Request(method, rawURL string, headers map[string]string, body []byte) (*Response, error) {
	if containsCRLF(method) {
		return nil, herrors.New(herrors.InvalidArgument, "http: CRLF in method")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "http: invalid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, herrors.New(herrors.InvalidArgument, "http: unsupported scheme "+u.Scheme)
	}
	host := u.Hostname()
	if containsCRLF(host) || containsCRLF(u.Path) {
		return nil, herrors.New(herrors.InvalidArgument, "http: CRLF in host or path")
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return nil, herrors.New(herrors.InvalidArgument, "http: invalid port "+port)
	}

	allowed, err := h.policy.AllowsHost(host)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, herrors.New(herrors.NotPermitted, "http: host not allow-listed: "+host)
	}

	for name, value := range headers {
		if containsCRLF(name) || containsCRLF(value) {
			return nil, herrors.New(herrors.InvalidArgument, "http: CRLF in header")
		}
	}

	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, h.connectTimeout)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, "http: connect failed", err)
	}
	defer func() { _ = conn.Close() }()

	if u.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
		if err := tlsConn.Handshake(); err != nil {
			return nil, herrors.Wrap(herrors.IOError, "http: tls handshake failed", err)
		}
		conn = tlsConn
	}

	if err := conn.SetDeadline(time.Now().Add(h.connectTimeout)); err != nil {
		return nil, herrors.Wrap(herrors.IOError, "http: set deadline failed", err)
	}

	reqLine := buildRequest(method, u, host, headers, body)
	if _, err := conn.Write(reqLine); err != nil {
		return nil, herrors.Wrap(herrors.IOError, "http: write failed", err)
	}

	parser := httpparse.New(h.limits)
	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			status, _, parseErr := parser.Parse(buf[:n])
			if parseErr != nil {
				return nil, herrors.Wrap(herrors.IOError, "http: response parse failed", parseErr)
			}
			if status == httpparse.StatusOK {
				break
			}
		}
		if readErr != nil {
			return nil, herrors.Wrap(herrors.IOError, "http: read failed", readErr)
		}
	}

	resp := parser.Response()
	return &Response{StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}, nil
}

func buildRequest(method string, u *url.URL, host string, headers map[string]string, body []byte) []byte {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&sb, "Host: %s\r\n", host)
	fmt.Fprintf(&sb, "Connection: close\r\n")
	if len(body) > 0 {
		fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(body))
	}
	for name, value := range headers {
		fmt.Fprintf(&sb, "%s: %s\r\n", name, value)
	}
	sb.WriteString("\r\n")
	sb.Write(body)
	return []byte(sb.String())
}

func containsCRLF(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}
