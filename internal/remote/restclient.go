// Package remote defines the collaborator contracts and HTTP clients.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/eventra/mobilesync/internal/errors"
)

// RESTConfig holds connection configuration for the hosted row API.
type RESTConfig struct {
	BaseURL string // e.g. "https://backend.eventra.app"
	APIKey  string
	Timeout time.Duration
}

// RESTClient implements DataStore against a PostgREST-style row API:
// tables are URL path segments, equality filters are query parameters,
// upserts merge duplicates on the natural key columns.
type RESTClient struct {
	config     *RESTConfig
	httpClient *http.Client
}

// NewRESTClient creates a RESTClient.
func NewRESTClient(config *RESTConfig) *RESTClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &RESTClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// apiError is the error body shape returned by the row API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *RESTClient) newRequest(ctx context.Context, method, table string, query url.Values, body io.Reader) (*http.Request, error) {
	u := fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(c.config.BaseURL, "/"), table)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *RESTClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, apperrors.Wrap(apperrors.ErrTimeout, "request cancelled or timed out", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
	}
	return resp, nil
}

// classify maps an unsuccessful HTTP response to the error taxonomy.
// Postgres unique violations arrive as HTTP 409 with code 23505.
func classify(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var ae apiError
	_ = json.Unmarshal(body, &ae)

	if resp.StatusCode == http.StatusConflict || ae.Code == "23505" {
		return apperrors.Wrap(apperrors.ErrDuplicateKey, "duplicate key",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	code := apperrors.ErrRemote
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		code = apperrors.ErrInvalid
	}
	return apperrors.Wrap(code, "remote request failed",
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}

func filterQuery(filters map[string]interface{}) url.Values {
	query := url.Values{}
	for col, val := range filters {
		query.Set(col, fmt.Sprintf("eq.%v", val))
	}
	return query
}

// Select implements DataStore.
func (c *RESTClient) Select(ctx context.Context, table string, filters map[string]interface{}, limit int) ([]Row, error) {
	query := filterQuery(filters)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	req, err := c.newRequest(ctx, http.MethodGet, table, query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to decode rows", err)
	}
	return rows, nil
}

// Insert implements DataStore.
func (c *RESTClient) Insert(ctx context.Context, table string, row Row) (Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode row", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to decode inserted row", err)
	}
	if len(rows) == 0 {
		return row, nil
	}
	return rows[0], nil
}

// Update implements DataStore.
func (c *RESTClient) Update(ctx context.Context, table, id string, patch Row) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode patch", err)
	}

	query := url.Values{}
	query.Set("id", "eq."+id)

	req, err := c.newRequest(ctx, http.MethodPatch, table, query, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return classify(resp)
	}
	return nil
}

// Delete implements DataStore.
func (c *RESTClient) Delete(ctx context.Context, table, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)

	req, err := c.newRequest(ctx, http.MethodDelete, table, query, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return classify(resp)
	}
	return nil
}

// Upsert implements DataStore.
func (c *RESTClient) Upsert(ctx context.Context, table string, rows []Row, conflictKeys []string) ([]Row, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode rows", err)
	}

	query := url.Values{}
	if len(conflictKeys) > 0 {
		query.Set("on_conflict", strings.Join(conflictKeys, ","))
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, query, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var stored []Row
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "failed to decode upserted rows", err)
	}
	return stored, nil
}
