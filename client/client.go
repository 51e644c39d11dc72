// Package client talks to a running restore daemon over its local control API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/types"
)

const (
	StatusInvalidBody      = 400 // Invalid body or missing parameters
	StatusRejected         = 403 // Not a loopback caller
	StatusNotFound         = 404 // Unknown session, or a device that cannot be opened
	StatusConflict         = 409 // Target busy, session finished, or a pre-flight warning
	StatusUnprocessable    = 422 // Image empty or too large
	StatusTooManyRequests  = 429 // Start requests too close together
	StatusUnknownDaemonErr = 500
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRejected        = errors.New("rejected by daemon")
	ErrTooManyRequests = errors.New("too many requests")
)

// APIError carries the daemon's error message alongside the status code.
type APIError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.err }

type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
}

func buildURL(remote, path string, query url.Values) string {
	u := url.URL{Scheme: "http", Host: remote, Path: "/api/restore/v1/" + path}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends req and decodes the data envelope into out when out is non-nil.
func do[T any](req *http.Request, out *T) error {
	resp, err := tool.GetHttpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		tool.DefaultLogger.Warnf("Failed to read response body: %v", readErr)
	} else if len(body) > 0 {
		tool.DefaultLogger.Debugf("[Client] %s %s: %s", req.Method, req.URL.Path, string(body))
	}

	var env envelope[T]
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &env); err != nil && resp.StatusCode == http.StatusOK {
			return fmt.Errorf("failed to parse daemon response: %v", err)
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out != nil {
			*out = env.Data
		}
		return nil
	case StatusRejected:
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, err: ErrRejected}
	case StatusNotFound:
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, err: ErrNotFound}
	case StatusConflict:
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, err: ErrConflict}
	case StatusTooManyRequests:
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, err: ErrTooManyRequests}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
}

// StartRestore asks the daemon at remote to start a session.
func StartRestore(remote string, request types.RestoreRequest) (*types.RestoreStartResponse, error) {
	payload, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start request: %v", err)
	}
	req, err := tool.NewHTTPReqWithApplication(http.NewRequest(http.MethodPost, buildURL(remote, "start", nil), bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create start request: %v", err)
	}
	var resp types.RestoreStartResponse
	if err := do(req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionId == "" {
		return nil, fmt.Errorf("start response missing sessionId")
	}
	return &resp, nil
}

// CancelRestore cancels a running session.
func CancelRestore(remote, sessionId string) error {
	if sessionId == "" {
		return fmt.Errorf("sessionId is required")
	}
	req, err := tool.NewHTTPReqWithApplication(http.NewRequest(http.MethodPost,
		buildURL(remote, "cancel", url.Values{"sessionId": {sessionId}}), nil))
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %v", err)
	}
	return do[struct{}](req, nil)
}

// GetStatus fetches one session's snapshot.
func GetStatus(remote, sessionId string) (*types.SessionSnapshot, error) {
	if sessionId == "" {
		return nil, fmt.Errorf("sessionId is required")
	}
	req, err := tool.NewHTTPReqWithApplication(http.NewRequest(http.MethodGet,
		buildURL(remote, "status", url.Values{"sessionId": {sessionId}}), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %v", err)
	}
	var snap types.SessionSnapshot
	if err := do(req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSessions fetches every session the daemon still knows about.
func ListSessions(remote string) ([]types.SessionSnapshot, error) {
	req, err := tool.NewHTTPReqWithApplication(http.NewRequest(http.MethodGet, buildURL(remote, "status", nil), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %v", err)
	}
	var list []types.SessionSnapshot
	if err := do(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Follow polls a session every interval until it reaches a terminal state or
// ctx is done. onSnapshot sees every polled snapshot, the last one included.
func Follow(ctx context.Context, remote, sessionId string, interval time.Duration, onSnapshot func(types.SessionSnapshot)) (*types.SessionSnapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := GetStatus(remote, sessionId)
		if err != nil {
			return nil, err
		}
		if onSnapshot != nil {
			onSnapshot(*snap)
		}
		if snap.State.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
