// Package api is the HTTP client for the cvrd backend. Every call is JSON over HTTP with a
// bearer token once a session exists.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Error is a non-2xx backend response. Message holds the server's explanation when it sent
// one.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func send[T any](ctx context.Context, c *Client, method, path string, in any) (T, error) {
	var out T
	err := c.do(ctx, method, path, in, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	return send[AuthResponse](ctx, c, http.MethodPost, "/login-user", creds)
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (AuthResponse, error) {
	return send[AuthResponse](ctx, c, http.MethodPost, "/signup-user", req)
}

// ValidateToken checks token with the backend and returns its user.
func (c *Client) ValidateToken(ctx context.Context, token string) (User, error) {
	var out User
	err := c.withToken(token).do(ctx, http.MethodGet, "/validate-token", nil, &out)
	return out, err
}

func (c *Client) withToken(token string) *Client {
	return &Client{baseURL: c.baseURL, http: c.http, token: token}
}

func (c *Client) CreateBurnerCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	req.Type = CardBurner
	return c.CreateCard(ctx, req)
}

func (c *Client) CreateCategoryCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	req.Type = CardCategory
	return c.CreateCard(ctx, req)
}

func (c *Client) CreateMerchantCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	req.Type = CardMerchant
	return c.CreateCard(ctx, req)
}

func (c *Client) CreateLocationCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	req.Type = CardLocation
	return c.CreateCard(ctx, req)
}

// CreateCard issues a card of req.Type.
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (Card, error) {
	if err := validateCreateCard(req); err != nil {
		return Card{}, err
	}
	return send[Card](ctx, c, http.MethodPost, "/create-"+string(req.Type)+"-card", req)
}

func validateCreateCard(req CreateCardRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("unknown card type %q", req.Type)
	}
	switch req.Type {
	case CardCategory:
		if strings.TrimSpace(req.Category) == "" {
			return errors.New("category card requires a category")
		}
	case CardMerchant:
		if strings.TrimSpace(req.Merchant) == "" {
			return errors.New("merchant card requires a merchant")
		}
	case CardLocation:
		if req.Location == nil {
			return errors.New("location card requires a location")
		}
	}
	return nil
}

func (c *Client) Cards(ctx context.Context) ([]Card, error) {
	return get[[]Card](ctx, c, "/cards")
}

func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	return get[[]Transaction](ctx, c, "/transactions")
}

func (c *Client) CardTransactions(ctx context.Context, cardID string) ([]Transaction, error) {
	return get[[]Transaction](ctx, c, "/cards/"+url.PathEscape(cardID)+"/transactions")
}

func (c *Client) Subscriptions(ctx context.Context) ([]Subscription, error) {
	return get[[]Subscription](ctx, c, "/subscriptions")
}

func (c *Client) ToggleSubscription(ctx context.Context, id string, enabled bool) (Subscription, error) {
	return send[Subscription](ctx, c, http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/toggle",
		map[string]bool{"enabled": enabled})
}

func (c *Client) NotificationSettings(ctx context.Context) (NotificationSettings, error) {
	return get[NotificationSettings](ctx, c, "/notification-settings")
}

func (c *Client) UpdateNotificationSettings(ctx context.Context, settings NotificationSettings) (NotificationSettings, error) {
	return send[NotificationSettings](ctx, c, http.MethodPut, "/notification-settings", settings)
}

func (c *Client) RegisterNotificationToken(ctx context.Context, token NotificationToken) error {
	return c.do(ctx, http.MethodPost, "/register-notification-token", token, nil)
}

func (c *Client) BankConnect(ctx context.Context, req BankConnectRequest) (BankConnection, error) {
	return send[BankConnection](ctx, c, http.MethodPost, "/bank-connect", req)
}
