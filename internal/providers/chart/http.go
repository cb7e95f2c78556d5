package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"astroreports/internal/domain"
)

const httpDefaultTimeout = 20 * time.Second

type HTTPOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPEngine calls a remote chart calculation service over JSON.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPEngine(opts HTTPOptions) (*HTTPEngine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chart engine base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpDefaultTimeout}
	}
	return &HTTPEngine{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  client,
	}, nil
}

type natalRequest struct {
	Birth domain.BirthData `json:"birth"`
}

type synastryRequest struct {
	First  domain.BirthData `json:"first"`
	Second domain.BirthData `json:"second"`
}

type transitRequest struct {
	Birth domain.BirthData `json:"birth"`
	Date  string           `json:"date"`
}

func (e *HTTPEngine) Natal(ctx context.Context, birth domain.BirthData) (*Chart, error) {
	var out Chart
	if err := e.post(ctx, "/natal", natalRequest{Birth: birth}, &out); err != nil {
		return nil, err
	}
	if out.SunSign == "" {
		return nil, fmt.Errorf("%w: chart engine returned no sun sign", domain.ErrProviderFailure)
	}
	return &out, nil
}

func (e *HTTPEngine) Synastry(ctx context.Context, a, b domain.BirthData) (*Synastry, error) {
	var out Synastry
	if err := e.post(ctx, "/synastry", synastryRequest{First: a, Second: b}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *HTTPEngine) Transits(ctx context.Context, birth domain.BirthData, date string) (*Transit, error) {
	var out Transit
	if err := e.post(ctx, "/transits", transitRequest{Birth: birth, Date: date}, &out); err != nil {
		return nil, err
	}
	if out.Date == "" {
		out.Date = date
	}
	return &out, nil
}

func (e *HTTPEngine) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("chart engine: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("chart engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: chart engine %s: %v", domain.ErrProviderFailure, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: chart engine %s status %d: %s", domain.ErrProviderFailure, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: chart engine %s: decode response: %v", domain.ErrProviderFailure, path, err)
	}
	return nil
}

var _ Engine = (*HTTPEngine)(nil)
