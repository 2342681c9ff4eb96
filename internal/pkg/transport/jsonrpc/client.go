// Package jsonrpc implements the JSON-RPC 2.0 envelope shared by the node's
// HTTP endpoint and its clients, plus a client that calls a remote endpoint.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ErrUnexpectedStatus is returned when the endpoint answers with a non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected http status")

// Client calls methods on a remote JSON-RPC endpoint.
type Client interface {
	// Call invokes method with params and decodes the result into result,
	// which may be nil. A server-side failure is returned as *Error.
	Call(ctx context.Context, method string, params, result any) error
}

type client struct {
	endpoint   string
	httpClient *http.Client
}

var _ Client = (*client)(nil)

func (c *client) Call(ctx context.Context, method string, params, result any) error {
	req := Request{
		JSONRPC: Version,
		ID:      json.RawMessage(strconv.Quote(uuid.NewString())),
		Method:  method,
	}

	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = p
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, res.Status)
	}

	var data Response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if data.Error != nil {
		return data.Error
	}

	if result == nil || len(data.Result) == 0 {
		return nil
	}
	return json.Unmarshal(data.Result, result)
}

// NewClient returns a Client posting to endpoint through httpClient.
func NewClient(httpClient *http.Client, endpoint string) *client {
	return &client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}
