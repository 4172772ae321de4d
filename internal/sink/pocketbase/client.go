// Package pocketbase implements the record sink against a PocketBase instance.
package pocketbase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
	"github.com/hkracing/racesync/internal/sink"
)

const listPageSize = 500

// Client talks to the PocketBase records API with superuser credentials.
// Authentication is lazy and the token is refreshed once on a 401.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// New builds a client from sink settings. The base URL must point at the
// PocketBase root, not the records endpoint.
func New(cfg config.PocketBaseSettings) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		email:      cfg.Credentials.Email,
		password:   cfg.Credentials.Password,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

var _ sink.Sink = (*Client)(nil)

type authResponse struct {
	Token string `json:"token"`
}

type listResponse struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalPages int              `json:"totalPages"`
	Items      []map[string]any `json:"items"`
}

func (c *Client) Upsert(ctx context.Context, collection, key string, fields map[string]any) (schema.ResultKind, error) {
	existing, err := c.Get(ctx, collection, key)
	switch {
	case err == nil:
		endpoint := fmt.Sprintf("%s/api/collections/%s/records/%s", c.baseURL, collection, existing.ID)
		if err := c.send(ctx, http.MethodPatch, endpoint, fields, nil); err != nil {
			return "", err
		}
		return schema.ResultUpdated, nil
	case errs.IsNotFound(err):
		endpoint := fmt.Sprintf("%s/api/collections/%s/records", c.baseURL, collection)
		if err := c.send(ctx, http.MethodPost, endpoint, fields, nil); err != nil {
			return "", err
		}
		return schema.ResultCreated, nil
	default:
		return "", err
	}
}

func (c *Client) Get(ctx context.Context, collection, key string) (sink.StoredRecord, error) {
	params := url.Values{}
	params.Set("filter", fmt.Sprintf("%s=%q", sink.FieldKey, key))
	params.Set("perPage", "1")
	endpoint := fmt.Sprintf("%s/api/collections/%s/records?%s", c.baseURL, collection, params.Encode())

	var page listResponse
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return sink.StoredRecord{}, err
	}
	if len(page.Items) == 0 {
		return sink.StoredRecord{}, errs.New("sink.pocketbase", errs.CodeNotFound,
			errs.WithCollection(collection), errs.WithRaceKey(key))
	}
	return storedFromItem(page.Items[0]), nil
}

func (c *Client) List(ctx context.Context, collection string, filter sink.Filter) ([]sink.StoredRecord, error) {
	var out []sink.StoredRecord
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", fmt.Sprintf("%d", page))
		params.Set("perPage", fmt.Sprintf("%d", listPageSize))
		if expr := filterExpression(filter); expr != "" {
			params.Set("filter", expr)
		}
		endpoint := fmt.Sprintf("%s/api/collections/%s/records?%s", c.baseURL, collection, params.Encode())

		var resp listResponse
		if err := c.send(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			out = append(out, storedFromItem(item))
		}
		if len(resp.Items) < listPageSize || (resp.TotalPages > 0 && page >= resp.TotalPages) {
			return out, nil
		}
	}
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	endpoint := fmt.Sprintf("%s/api/collections/%s/records/%s", c.baseURL, collection, id)
	return c.send(ctx, http.MethodDelete, endpoint, nil, nil)
}

func filterExpression(filter sink.Filter) string {
	var parts []string
	if filter.RaceDate != "" {
		parts = append(parts, fmt.Sprintf("%s=%q", sink.FieldRaceDate, filter.RaceDate))
	}
	if filter.Venue != "" {
		parts = append(parts, fmt.Sprintf("%s=%q", sink.FieldVenue, filter.Venue))
	}
	return strings.Join(parts, " && ")
}

func storedFromItem(item map[string]any) sink.StoredRecord {
	id, _ := item["id"].(string)
	key, _ := item[sink.FieldKey].(string)
	return sink.StoredRecord{ID: id, Key: key, Fields: item}
}

// send issues one authenticated request, retrying exactly once with a fresh
// token when the stored one has expired.
func (c *Client) send(ctx context.Context, method, endpoint string, body any, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		retry, err := c.do(ctx, method, endpoint, token, body, out)
		if !retry {
			return err
		}
		c.clearToken(token)
	}
	return errs.New("sink.pocketbase", errs.CodeFatalSink,
		errs.WithMessage("authentication rejected after token refresh"))
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body, out any) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return false, errs.New("sink.pocketbase", errs.CodeInvalid, errs.WithCause(err))
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, errs.New("sink.pocketbase", errs.CodeInvalid, errs.WithCause(err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errs.New("sink.pocketbase", errs.CodeTransient, errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return true, nil
	}
	if err := mapStatus(resp); err != nil {
		return false, err
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil {
			return false, errs.New("sink.pocketbase", errs.CodeInvalid,
				errs.WithMessage("decode response"), errs.WithCause(err))
		}
	}
	return false, nil
}

func mapStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	message := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return errs.New("sink.pocketbase", errs.CodeFatalSink,
			errs.WithMessage(message), errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return errs.New("sink.pocketbase", errs.CodeNotFound,
			errs.WithMessage(message), errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errs.New("sink.pocketbase", errs.CodeTransient,
			errs.WithMessage(message), errs.WithHTTP(resp.StatusCode))
	default:
		return errs.New("sink.pocketbase", errs.CodeInvalid,
			errs.WithMessage(message), errs.WithHTTP(resp.StatusCode))
	}
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// clearToken forgets the token only if it is still the one that failed, so a
// concurrent refresh is not thrown away.
func (c *Client) clearToken(failed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == failed {
		c.token = ""
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identity": c.email,
		"password": c.password,
	})
	if err != nil {
		return "", errs.New("sink.pocketbase", errs.CodeInvalid, errs.WithCause(err))
	}
	endpoint := c.baseURL + "/api/collections/_superusers/auth-with-password"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errs.New("sink.pocketbase", errs.CodeInvalid, errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.New("sink.pocketbase", errs.CodeTransient, errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", errs.New("sink.pocketbase", errs.CodeFatalSink,
			errs.WithMessage(fmt.Sprintf("credentials rejected: %s", strings.TrimSpace(string(body)))),
			errs.WithHTTP(resp.StatusCode))
	}
	if err := mapStatus(resp); err != nil {
		return "", err
	}
	var auth authResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&auth); err != nil {
		return "", errs.New("sink.pocketbase", errs.CodeInvalid,
			errs.WithMessage("decode auth response"), errs.WithCause(err))
	}
	if strings.TrimSpace(auth.Token) == "" {
		return "", errs.New("sink.pocketbase", errs.CodeFatalSink,
			errs.WithMessage("empty auth token"))
	}
	return auth.Token, nil
}
