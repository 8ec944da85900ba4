package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"cvrd/client/internal/api"
	"cvrd/client/internal/backup"
	"cvrd/client/internal/cache"
	"cvrd/client/internal/prefs"
	"cvrd/client/internal/realtime"
	"cvrd/client/internal/store"
)

type fakeBackend struct {
	mu    sync.Mutex
	token string
	calls map[string]int

	loginFn         func(api.Credentials) (api.AuthResponse, error)
	cardsFn         func() ([]api.Card, error)
	transactionsFn  func() ([]api.Transaction, error)
	cardTxFn        func(cardID string) ([]api.Transaction, error)
	subscriptionsFn func() ([]api.Subscription, error)
	toggleFn        func(id string, enabled bool) (api.Subscription, error)
	settingsFn      func() (api.NotificationSettings, error)
	updateFn        func(api.NotificationSettings) (api.NotificationSettings, error)
	createCardFn    func(api.CreateCardRequest) (api.Card, error)
	bankConnectFn   func(api.BankConnectRequest) (api.BankConnection, error)
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) Login(_ context.Context, creds api.Credentials) (api.AuthResponse, error) {
	f.record("login")
	if f.loginFn != nil {
		return f.loginFn(creds)
	}
	return api.AuthResponse{Token: "tok", User: api.User{ID: "u1", Email: creds.Email}}, nil
}

func (f *fakeBackend) Signup(_ context.Context, req api.SignupRequest) (api.AuthResponse, error) {
	f.record("signup")
	return api.AuthResponse{Token: "tok", User: api.User{ID: "u1", Email: req.Email}}, nil
}

func (f *fakeBackend) ValidateToken(context.Context, string) (api.User, error) {
	f.record("validate")
	return api.User{ID: "u1"}, nil
}

func (f *fakeBackend) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeBackend) Cards(context.Context) ([]api.Card, error) {
	f.record("cards")
	if f.cardsFn != nil {
		return f.cardsFn()
	}
	return []api.Card{}, nil
}

func (f *fakeBackend) Transactions(context.Context) ([]api.Transaction, error) {
	f.record("transactions")
	if f.transactionsFn != nil {
		return f.transactionsFn()
	}
	return []api.Transaction{}, nil
}

func (f *fakeBackend) CardTransactions(_ context.Context, cardID string) ([]api.Transaction, error) {
	f.record("card-transactions")
	if f.cardTxFn != nil {
		return f.cardTxFn(cardID)
	}
	return []api.Transaction{}, nil
}

func (f *fakeBackend) Subscriptions(context.Context) ([]api.Subscription, error) {
	f.record("subscriptions")
	if f.subscriptionsFn != nil {
		return f.subscriptionsFn()
	}
	return []api.Subscription{}, nil
}

func (f *fakeBackend) ToggleSubscription(_ context.Context, id string, enabled bool) (api.Subscription, error) {
	f.record("toggle")
	if f.toggleFn != nil {
		return f.toggleFn(id, enabled)
	}
	return api.Subscription{ID: id, Enabled: enabled}, nil
}

func (f *fakeBackend) NotificationSettings(context.Context) (api.NotificationSettings, error) {
	f.record("settings")
	if f.settingsFn != nil {
		return f.settingsFn()
	}
	return api.NotificationSettings{Enabled: true}, nil
}

func (f *fakeBackend) UpdateNotificationSettings(_ context.Context, settings api.NotificationSettings) (api.NotificationSettings, error) {
	f.record("update-settings")
	if f.updateFn != nil {
		return f.updateFn(settings)
	}
	return settings, nil
}

func (f *fakeBackend) CreateCard(_ context.Context, req api.CreateCardRequest) (api.Card, error) {
	f.record("create-card")
	if f.createCardFn != nil {
		return f.createCardFn(req)
	}
	return api.Card{ID: "new", Type: req.Type, Name: req.Name}, nil
}

func (f *fakeBackend) RegisterNotificationToken(context.Context, api.NotificationToken) error {
	f.record("register-token")
	return nil
}

func (f *fakeBackend) BankConnect(_ context.Context, req api.BankConnectRequest) (api.BankConnection, error) {
	f.record("bank-connect")
	if f.bankConnectFn != nil {
		return f.bankConnectFn(req)
	}
	return api.BankConnection{Status: "linked"}, nil
}

type fakeChannel struct {
	mu     sync.Mutex
	tokens []string
	state  realtime.State
}

func (c *fakeChannel) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	c.state = realtime.Connected
}

func (c *fakeChannel) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, "")
	c.state = realtime.Disconnected
}

func (c *fakeChannel) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Close() error {
	c.ClearToken()
	return nil
}

func (c *fakeChannel) history() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens...)
}

type memoryBackups struct {
	docs map[string]backup.Document
}

func (m *memoryBackups) Backup(_ context.Context, deviceID string, p map[string]json.RawMessage) (backup.Document, error) {
	if m.docs == nil {
		m.docs = make(map[string]backup.Document)
	}
	doc := backup.Document{DeviceID: deviceID, Preferences: p}
	m.docs[deviceID] = doc
	return doc, nil
}

func (m *memoryBackups) Restore(_ context.Context, deviceID string) (backup.Document, error) {
	doc, ok := m.docs[deviceID]
	if !ok {
		return backup.Document{}, backup.ErrNoBackup
	}
	return doc, nil
}

type testEnv struct {
	client  *Client
	backend *fakeBackend
	channel *fakeChannel
	prefs   *prefs.Store
	inbox   *realtime.Inbox
}

func newTestPrefs(t *testing.T) *prefs.Store {
	t.Helper()
	backend, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return prefs.New(backend)
}

func newTestEnv(t *testing.T, backend *fakeBackend, backups Backups) *testEnv {
	t.Helper()
	env := &testEnv{
		backend: backend,
		channel: &fakeChannel{},
		prefs:   newTestPrefs(t),
		inbox:   realtime.NewInbox(10),
	}
	env.client = New(Options{
		Prefs:   env.prefs,
		Backend: backend,
		Cache: cache.New(cache.Options{
			NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		}),
		Channel:  env.channel,
		Inbox:    env.inbox,
		Backups:  backups,
		DeviceID: "device-1",
	})
	return env
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	if _, err := e.client.Session().Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}
