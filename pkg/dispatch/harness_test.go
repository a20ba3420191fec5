package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindburn-labs/hull/pkg/interpreter"
)

func TestHarness_GetDispatchesDirectlyNoMiddleware(t *testing.T) {
	script := &interpreter.Script{
		Middleware: []interpreter.Route{{Method: "*", Pattern: "/*", HandlerID: 99}},
		Routes:     []interpreter.Route{{Method: "GET", Pattern: "/health", HandlerID: 1}},
	}
	inv := &fakeInvoker{byHandler: map[uint32]*interpreter.HandlerResponse{
		1:  {Status: 200, Body: []byte(`{"status":"ok"}`)},
		99: {Status: 500, Continue: false}, // would halt if the harness ran middleware
	}}
	h := NewHarness(inv, script)

	result, err := h.Get("/health", RequestOpts{})
	require.NoError(t, err)
	assert.Equal(t, 200, result.Status)
	assert.JSONEq(t, `{"status":"ok"}`, string(result.JSON))
	assert.NotContains(t, inv.calls, uint32(99))
}

func TestHarness_NoMatchIs404(t *testing.T) {
	h := NewHarness(&fakeInvoker{}, &interpreter.Script{})
	result, err := h.Get("/nope", RequestOpts{})
	require.NoError(t, err)
	assert.Equal(t, 404, result.Status)
}

func TestHarness_TestAndRun(t *testing.T) {
	script := &interpreter.Script{
		Routes: []interpreter.Route{{Method: "GET", Pattern: "/health", HandlerID: 1}},
	}
	inv := &fakeInvoker{byHandler: map[uint32]*interpreter.HandlerResponse{
		1: {Status: 200, Body: []byte(`{"status":"ok"}`)},
	}}
	h := NewHarness(inv, script)

	h.Test("health returns ok", func(h *Harness) error {
		result, err := h.Get("/health", RequestOpts{})
		if err := Ok(err); err != nil {
			return err
		}
		return Eq(result.Status, 200)
	})
	h.Test("health is actually broken", func(h *Harness) error {
		return Eq(1, 2)
	})

	results, passed, failed := h.Run()
	require.Len(t, results, 2)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}

func TestHarnessInvoke_UsesBackgroundContext(t *testing.T) {
	// Do should not require a caller-supplied context, matching
	// spec.md §4.9's in-memory, socket-free contract.
	inv := &fakeInvoker{}
	h := NewHarness(inv, &interpreter.Script{
		Routes: []interpreter.Route{{Method: "POST", Pattern: "/items", HandlerID: 5}},
	})
	_, err := h.Post("/items", RequestOpts{Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, inv.calls)
	_ = context.Background()
}
