package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mockmonero/internal/sequencer"
	"mockmonero/internal/tx"
)

// Client talks to a node's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets addr, either host:port or a full URL.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{base: strings.TrimRight(addr, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
}

// StatusError is a non-2xx answer from the node.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusUnprocessableEntity {
		var e ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// SubmitTx posts t. Rejections (409, 422) come back as a receipt, not an error.
func (c *Client) SubmitTx(ctx context.Context, t *tx.Transaction) (sequencer.Receipt, error) {
	data, err := tx.MarshalJSON(t)
	if err != nil {
		return sequencer.Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/tx", bytes.NewReader(data))
	if err != nil {
		return sequencer.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var rc sequencer.Receipt
	_, err = c.do(req, &rc)
	return rc, err
}

// Root fetches the current root and ledger counts.
func (c *Client) Root(ctx context.Context) (RootResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/root", nil)
	if err != nil {
		return RootResponse{}, err
	}
	var out RootResponse
	_, err = c.do(req, &out)
	return out, err
}

// Output fetches one registered output.
func (c *Client) Output(ctx context.Context, index uint64) (OutputResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/outputs/%d", c.base, index), nil)
	if err != nil {
		return OutputResponse{}, err
	}
	var out OutputResponse
	_, err = c.do(req, &out)
	return out, err
}
