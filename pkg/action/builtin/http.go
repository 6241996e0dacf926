// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// maxHTTPBodyBytes caps how much of a response body is copied into
// instance data.
const maxHTTPBodyBytes = 1 << 20

// HTTPAction performs an HTTP request and records the response in the
// result data.
//
// Config:
//
//	url:     request URL (required)
//	method:  HTTP method (default GET)
//	body:    request body string
//	headers: map of header name to value
type HTTPAction struct {
	client *http.Client
}

// NewHTTPAction creates an HTTPAction with a default client.
func NewHTTPAction() *HTTPAction {
	return &HTTPAction{client: &http.Client{Timeout: 30 * time.Second}}
}

// Name implements action.Action.
func (*HTTPAction) Name() string { return "http" }

// Description implements action.Action.
func (*HTTPAction) Description() string { return "performs an HTTP request" }

// CanExecute implements action.Action.
func (*HTTPAction) CanExecute(_ context.Context, wfCtx workflow.Context) bool {
	return configString(wfCtx, "url") != ""
}

// Execute implements action.Action.
func (a *HTTPAction) Execute(ctx context.Context, wfCtx workflow.Context) workflow.ActionResult {
	url := configString(wfCtx, "url")
	if url == "" {
		return workflow.Failure("http requires a url config value")
	}

	method := configString(wfCtx, "method")
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if s := configString(wfCtx, "body"); s != "" {
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return workflow.Failure(err.Error())
	}
	if raw, ok := wfCtx.ConfigValue("headers"); ok {
		headers, _ := raw.(map[string]any)
		for name, value := range headers {
			if v, ok := value.(string); ok {
				req.Header.Set(name, v)
			}
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return workflow.Failure(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBodyBytes))
	if err != nil {
		return workflow.Failure(err.Error())
	}

	data := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}
	if resp.StatusCode >= 400 {
		return workflow.FailureWithMetadata(
			"http request returned status "+resp.Status, data)
	}
	return workflow.Success(data)
}

// ActionSettings implements action.Configurable. Network calls default to
// a couple of retries with exponential backoff.
func (*HTTPAction) ActionSettings() action.Settings {
	return action.Settings{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		Backoff:       action.DefaultBackoff(),
	}
}
