package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client wraps http.Client with the service's routes.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(hc *http.Client, baseURL string, timeout time.Duration) *client {
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &client{http: hc, baseURL: baseURL}
}

type frame struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Image     string `json:"image"`
	Mode      string `json:"mode"`
}

type jobAck struct {
	JobID      string `json:"jobId"`
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
}

type sessionState struct {
	SessionID  string `json:"sessionId"`
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// submit posts one async frame and returns the response status with the
// decoded acknowledgement.
func (c *client) submit(ctx context.Context, f frame) (int, jobAck, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return 0, jobAck{}, fmt.Errorf("marshal frame: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/analyses?async=1", body)
	if err != nil {
		return 0, jobAck{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var ack jobAck
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return resp.StatusCode, jobAck{}, fmt.Errorf("decode ack: %w", err)
		}
	}
	return resp.StatusCode, ack, nil
}

func (c *client) session(ctx context.Context, id string) (sessionState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil)
	if err != nil {
		return sessionState{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return sessionState{}, fmt.Errorf("%w: session %s: %d", ErrStatus, id, resp.StatusCode)
	}
	var st sessionState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return sessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return st, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
