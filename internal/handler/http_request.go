package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// NewHTTPRequestFunc returns the "http_request" builtin. Arguments:
// url (required), method, headers, body.
func NewHTTPRequestFunc(logger *zap.Logger) model.TaskFunc {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}

		method := optionalStringArg(args, "method")
		if method == "" {
			method = http.MethodGet
		}

		var body io.Reader
		if b := optionalStringArg(args, "body"); b != "" {
			body = strings.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for key, value := range stringMapArg(args, "headers") {
			req.Header.Add(key, value)
		}

		logger.Info("Executing HTTP request",
			zap.String("method", method),
			zap.String("url", url))

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP request failed with status: %d", resp.StatusCode)
		}

		return string(respBody), nil
	}
}
