package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"iou_ledger/internal/fault"

	"github.com/gorilla/websocket"
)

const sessionHeader = "X-Session-ID"

type (
	envelope struct {
		Status string `json:"status"`
		Kind   string `json:"kind"`
		Error  string `json:"error"`
	}

	// APIError is a non-success reply from the ledger server.
	APIError struct {
		Status  int
		Kind    string
		Message string
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// Is lets callers match server replies against the fault sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case fault.ErrValidation:
		return e.Kind == string(fault.KindValidation)
	case fault.ErrConflict:
		return e.Kind == string(fault.KindConflict)
	case fault.ErrNotFound:
		return e.Kind == string(fault.KindNotFound)
	case fault.ErrStoreIO:
		return e.Kind == string(fault.KindStoreIO)
	case fault.ErrUnauthorized:
		return e.Kind == string(fault.KindUnauthorized)
	case fault.ErrPartialFailure:
		return e.Kind == string(fault.KindPartialFailure)
	}
	return false
}

// post sends req to path and decodes the field key of a success reply into
// out.
func (c *App) post(ctx context.Context, path string, req any, key string, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	u := url.URL{
		Scheme: "http",
		Host:   c.host,
		Path:   path,
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		httpReq.Header.Set(sessionHeader, c.session)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read reply: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Kind == "" {
			return &APIError{Status: resp.StatusCode, Kind: string(fault.KindUnknown), Message: string(bytes.TrimSpace(data))}
		}
		return &APIError{Status: resp.StatusCode, Kind: env.Kind, Message: env.Error}
	}

	if out == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: decode reply: %w", path, err)
	}
	v, ok := raw[key]
	if !ok {
		return fmt.Errorf("%s: reply has no %q field", path, key)
	}
	return json.Unmarshal(v, out)
}

func (c *App) initWebhook(name string) (*websocket.Conn, error) {
	params := url.Values{
		"username": []string{name},
	}
	if c.session != "" {
		params.Set("session", c.session)
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     c.host,
		Path:     "/ws",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
