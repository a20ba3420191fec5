package httpparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 13\r\n\r\n{\"ok\":true}\r\n"
	p := New(DefaultLimits)
	status, _, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	resp := p.Response()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "{\"ok\":true}\r\n"[:13], string(resp.Body))
}

func TestParseIncrementalFeeding(t *testing.T) {
	p := New(DefaultLimits)
	chunks := []string{
		"HTTP/1.1 200 OK\r\n",
		"Content-Length: 5\r\n",
		"\r\n",
		"hello",
	}
	var status Status
	var err error
	for _, c := range chunks {
		status, _, err = p.Parse([]byte(c))
		require.NoError(t, err)
	}
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, "hello", string(p.Response().Body))
}

func TestParseChunkedBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	p := New(DefaultLimits)
	status, _, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, "hello world", string(p.Response().Body))
}

func TestParseChunkedBodyOverflowErrorsInsteadOfTruncating(t *testing.T) {
	limits := Limits{MaxHeaderCount: 100, MaxHeaderBytes: 1024, MaxBodyBytes: 8}
	p := New(limits)
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	status, _, err := p.Parse([]byte(raw))
	assert.Equal(t, StatusError, status)
	assert.Error(t, err)
}

func TestParseRejectsOversizedHeaderCount(t *testing.T) {
	limits := Limits{MaxHeaderCount: 1, MaxHeaderBytes: 1024, MaxBodyBytes: 1024}
	p := New(limits)
	raw := "HTTP/1.1 200 OK\r\nA: 1\r\nB: 2\r\n\r\n"
	status, _, err := p.Parse([]byte(raw))
	assert.Equal(t, StatusError, status)
	assert.Error(t, err)
}

func TestResetAllowsReuse(t *testing.T) {
	p := New(DefaultLimits)
	raw := "HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n"
	status, _, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 204, p.Response().StatusCode)

	p.Reset()
	status, _, err = p.Parse([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 200, p.Response().StatusCode)
}
