package jsonrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler func(t *testing.T, req Request) any) *client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		_ = json.NewEncoder(w).Encode(handler(t, req))
	}))
	t.Cleanup(server.Close)

	return NewClient(server.Client(), server.URL)
}

func TestClient_Call(t *testing.T) {
	t.Run("decodes the result", func(t *testing.T) {
		c := serve(t, func(t *testing.T, req Request) any {
			assert.Equal(t, Version, req.JSONRPC)
			assert.Equal(t, "getBalance", req.Method)
			assert.JSONEq(t, `{"address":"02ab"}`, string(req.Params))
			assert.NotEmpty(t, req.ID)

			return Response{JSONRPC: Version, ID: req.ID, Result: json.RawMessage(`{"balance":42}`)}
		})

		var out struct {
			Balance uint64 `json:"balance"`
		}
		require.NoError(t, c.Call(t.Context(), "getBalance", map[string]string{"address": "02ab"}, &out))
		assert.Equal(t, uint64(42), out.Balance)
	})

	t.Run("omits params when nil", func(t *testing.T) {
		c := serve(t, func(t *testing.T, req Request) any {
			assert.Empty(t, req.Params)
			return Response{JSONRPC: Version, ID: req.ID, Result: json.RawMessage(`true`)}
		})

		assert.NoError(t, c.Call(t.Context(), "getStatus", nil, nil))
	})

	t.Run("returns the server error", func(t *testing.T) {
		c := serve(t, func(t *testing.T, req Request) any {
			return Response{JSONRPC: Version, ID: req.ID, Error: NewError(CodeMethodNotFound, "method not found")}
		})

		err := c.Call(t.Context(), "nope", nil, nil)
		assert.ErrorIs(t, err, ErrServerReturnedError)

		var rpcErr *Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
		assert.Equal(t, "[-32601] - method not found", rpcErr.Error())
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)

		err := NewClient(server.Client(), server.URL).Call(t.Context(), "getStatus", nil, nil)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		err := NewClient(http.DefaultClient, "http://127.0.0.1:1/rpc").Call(t.Context(), "getStatus", nil, nil)
		assert.Error(t, err)
	})
}
