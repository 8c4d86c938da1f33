// Raw REST client for probing the Gemini API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/repteam/rep/internal/shared"
)

// DefaultProbeURL is the public Generative Language API endpoint.
const DefaultProbeURL = "https://generativelanguage.googleapis.com"

// ProbeClient makes raw HTTP requests to the Generative Language API.
//
// It bypasses the SDK on purpose so diagnostics see the exact status codes and error bodies.
type ProbeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewProbeClient creates a probe for apiKey. baseURL and client default to the public API and [http.DefaultClient].
func NewProbeClient(baseURL, apiKey string, client *http.Client) *ProbeClient {
	if baseURL == "" {
		baseURL = DefaultProbeURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &ProbeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// ErrorMessage extracts error.message (and error.status) from a Google API error body.
func (r *APIResponse) ErrorMessage() string {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil || body.Error.Message == "" {
		return strings.TrimSpace(string(r.Body))
	}
	if body.Error.Status != "" {
		return body.Error.Status + ": " + body.Error.Message
	}
	return body.Error.Message
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *ProbeClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return a.do(req)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *ProbeClient) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(path), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

// ListModels returns the model names visible to the key on apiVersion (v1beta or v1alpha),
// e.g. "models/gemini-2.0-flash". A non-2xx response is returned alongside [shared.ErrAPIRequest].
func (a *ProbeClient) ListModels(ctx context.Context, apiVersion string) ([]string, *APIResponse, error) {
	resp, err := a.Get(ctx, "/"+apiVersion+"/models")
	if err != nil {
		return nil, nil, err
	}
	if !resp.OK() {
		return nil, resp, fmt.Errorf("%w: list models (%s): status %d: %s", shared.ErrAPIRequest, apiVersion, resp.StatusCode, resp.ErrorMessage())
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, resp, fmt.Errorf("failed to decode model list: %w", err)
	}

	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, resp, nil
}

// Ping asks model a trivial question and returns its answer.
func (a *ProbeClient) Ping(ctx context.Context, apiVersion, model string) (string, *APIResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"contents": []map[string]any{{"parts": []map[string]string{{"text": "Hello, are you working?"}}}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode request: %w", err)
	}

	model = strings.TrimPrefix(model, "models/")
	resp, err := a.Post(ctx, "/"+apiVersion+"/models/"+model+":generateContent", payload)
	if err != nil {
		return "", nil, err
	}
	if !resp.OK() {
		return "", resp, fmt.Errorf("%w: generate (%s): status %d: %s", shared.ErrAPIRequest, model, resp.StatusCode, resp.ErrorMessage())
	}

	var body struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", resp, fmt.Errorf("failed to decode generation: %w", err)
	}
	if len(body.Candidates) == 0 || len(body.Candidates[0].Content.Parts) == 0 {
		return "", resp, shared.ErrEmptyResponse
	}
	return body.Candidates[0].Content.Parts[0].Text, resp, nil
}

func (a *ProbeClient) url(path string) string {
	u := a.baseURL + path
	if a.apiKey == "" {
		return u
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return u + sep + "key=" + url.QueryEscape(a.apiKey)
}

func (a *ProbeClient) do(req *http.Request) (*APIResponse, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
