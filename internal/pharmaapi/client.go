package pharmaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseBody = 4 << 20

// Client talks to the pharma backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) BaseURL() string { return c.baseURL }

// ── Catalog ─────────────────────────────────────────────────────────────────

func (c *Client) PublicDrugs(ctx context.Context) ([]Drug, error) {
	var drugs []Drug
	if err := c.do(ctx, http.MethodGet, "/public/drugs", "", nil, &drugs); err != nil {
		return nil, err
	}
	return drugs, nil
}

func (c *Client) SearchDrugs(ctx context.Context, query string, limit int) ([]Drug, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/api/drugs/search?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// UploadDrugImage posts a multipart "file" field for the given drug.
func (c *Client) UploadDrugImage(ctx context.Context, token string, drugID int64, filename string, content io.Reader) (*ImageUploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/drugs/%d/image", c.baseURL, drugID), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp ImageUploadResponse
	if err := c.send(req, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ── Auth ────────────────────────────────────────────────────────────────────

func (c *Client) StartAuth(ctx context.Context, phone string) (*StartAuthResponse, error) {
	var resp StartAuthResponse
	body := map[string]string{"phone": phone}
	if err := c.do(ctx, http.MethodPost, "/api/auth/start", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*VerifyOTPResponse, error) {
	var resp VerifyOTPResponse
	body := map[string]string{"phone": phone, "otp_code": code}
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify_otp", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SetPassword(ctx context.Context, phone, password, tempToken string) (*MessageResponse, error) {
	var resp MessageResponse
	body := map[string]string{"phone": phone, "password": password, "temp_token": tempToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/set_password", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, phone, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"phone": phone, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/me", token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ── Revenue & purchases ─────────────────────────────────────────────────────

func (c *Client) Revenue(ctx context.Context, month, year int) (*Revenue, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))
	var rev Revenue
	if err := c.do(ctx, http.MethodGet, "/api/revenue?"+q.Encode(), "", nil, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) RecordPurchase(ctx context.Context, p Purchase) (*PurchaseReceipt, error) {
	var receipt PurchaseReceipt
	if err := c.do(ctx, http.MethodPost, "/api/purchase", "", p, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) UserStats(ctx context.Context, token string) ([]UserStat, error) {
	var resp userStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/user-stats", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ── transport ───────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, out)
}

func (c *Client) send(req *http.Request, token string, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrNetwork, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectionError{Status: resp.StatusCode, Detail: parseDetail(resp.StatusCode, data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
