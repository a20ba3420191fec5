package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindburn-labs/hull/pkg/dispatch"
	"github.com/mindburn-labs/hull/pkg/interpreter"
)

type fakeInvoker struct{}

func (fakeInvoker) Invoke(_ context.Context, _ *interpreter.Script, _ uint32, _ *interpreter.HandlerRequest) (*interpreter.HandlerResponse, error) {
	return &interpreter.HandlerResponse{
		Status:  200,
		Headers: []interpreter.HeaderPair{{Name: "Content-Type", Value: "application/json"}},
		Body:    []byte(`{"status":"ok"}`),
	}, nil
}

func TestBridgeHandler_HappyRequest(t *testing.T) {
	script := &interpreter.Script{
		Routes: []interpreter.Route{{Method: "GET", Pattern: "/health", HandlerID: 1}},
	}
	d := dispatch.New(fakeInvoker{}, script, nil, nil)
	h := &bridgeHandler{dispatcher: d}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBridgeHandler_NotFound(t *testing.T) {
	script := &interpreter.Script{}
	d := dispatch.New(fakeInvoker{}, script, nil, nil)
	h := &bridgeHandler{dispatcher: d}

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
