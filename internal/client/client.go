// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package client talks to the instrument service. Every call reports its
// outcome through the error value: nil for success, ErrNotFound when the
// service has no matching resource, a *ServiceError when the service
// supplied a structured failure message, and a wrapped transport error
// otherwise. The fail-open or fail-closed policy for each outcome belongs
// to the caller, not here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pdiddy/taglink/internal/httputil"
	"github.com/pdiddy/taglink/pkg/types"
)

// ErrNotFound reports that the service has no resource for the given key.
var ErrNotFound = errors.New("not found")

// ServiceError carries a structured failure message from a response body.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is an instrument service client. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// New builds a Client from config. BaseURL must not be empty; a trailing
// slash is tolerated.
func New(cfg types.ServiceConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// CheckTag asks the service whether tag is already paired to an instrument.
func (c *Client) CheckTag(ctx context.Context, tag string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/instruments/"+tag+"/exists", nil)
	if err != nil {
		return false, err
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, responseError(resp)
	}

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("parsing existence response: %w", err)
	}
	return body.Exists, nil
}

// FetchRecord retrieves the instrument paired to tag. A 404 maps to
// ErrNotFound.
func (c *Client) FetchRecord(ctx context.Context, tag string) (types.InstrumentRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/instruments/"+tag, nil)
	if err != nil {
		return types.InstrumentRecord{}, err
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("record fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.InstrumentRecord{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return types.InstrumentRecord{}, responseError(resp)
	}

	var rec types.InstrumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("parsing record: %w", err)
	}
	return rec, nil
}

// Pair asks the service to bind tag to the instrument with the given
// serial. A 404 (unknown serial) maps to ErrNotFound; other failures with
// a structured body map to *ServiceError. Pairing is not idempotent, so
// there is no retry here.
func (c *Client) Pair(ctx context.Context, tag, serial string) error {
	payload, err := json.Marshal(map[string]string{"serial": serial})
	if err != nil {
		return fmt.Errorf("encoding pair request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/instruments/"+tag+"/pair", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pair request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return responseError(resp)
	}
}

// Unpair removes the binding between tag and its instrument.
func (c *Client) Unpair(ctx context.Context, tag string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/instruments/"+tag+"/pair", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unpair request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return responseError(resp)
	}
}

// FetchImage retrieves the persisted image for tag. Returns the raw bytes
// and the Content-Type header; a 404 maps to ErrNotFound.
func (c *Client) FetchImage(ctx context.Context, tag string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/instruments/"+tag+"/image", nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return nil, "", fmt.Errorf("image fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", responseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading image body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// UploadImage submits an image blob for tag as multipart form content.
// The form field is named "image" and the part filename is the tag
// identifier. Not retried, same as Pair.
func (c *Client) UploadImage(ctx context.Context, tag string, blob []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", tag+".jpg")
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/instruments/"+tag+"/image", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("image upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

// responseError builds the most specific error a non-2xx response allows:
// a *ServiceError when the body carries {"error": ...}, or a generic
// status error otherwise.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var structured struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		msg := structured.Error
		if msg == "" {
			msg = structured.Message
		}
		if msg != "" {
			return &ServiceError{StatusCode: resp.StatusCode, Message: msg}
		}
	}
	return fmt.Errorf("service returned HTTP %d", resp.StatusCode)
}
