package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"cvrd/client/internal/api"
	"cvrd/client/internal/backup"
	"cvrd/client/internal/cache"
	"cvrd/client/internal/mutation"
	"cvrd/client/internal/prefs"
	"cvrd/client/internal/realtime"
	"cvrd/client/internal/review"
	"cvrd/client/internal/session"
)

const maxFailures = 20

// Backend is everything the client asks of the cvrd API.
type Backend interface {
	session.Backend
	Cards(ctx context.Context) ([]api.Card, error)
	Transactions(ctx context.Context) ([]api.Transaction, error)
	CardTransactions(ctx context.Context, cardID string) ([]api.Transaction, error)
	Subscriptions(ctx context.Context) ([]api.Subscription, error)
	ToggleSubscription(ctx context.Context, id string, enabled bool) (api.Subscription, error)
	NotificationSettings(ctx context.Context) (api.NotificationSettings, error)
	UpdateNotificationSettings(ctx context.Context, settings api.NotificationSettings) (api.NotificationSettings, error)
	CreateCard(ctx context.Context, req api.CreateCardRequest) (api.Card, error)
	RegisterNotificationToken(ctx context.Context, token api.NotificationToken) error
	BankConnect(ctx context.Context, req api.BankConnectRequest) (api.BankConnection, error)
}

type Channel interface {
	SetToken(token string)
	ClearToken()
	State() realtime.State
	Close() error
}

type Backups interface {
	Backup(ctx context.Context, deviceID string, prefs map[string]json.RawMessage) (backup.Document, error)
	Restore(ctx context.Context, deviceID string) (backup.Document, error)
}

type Options struct {
	Prefs   *prefs.Store
	Backend Backend
	Cache   *cache.Cache
	Channel Channel
	Inbox   *realtime.Inbox
	// Backups is optional; backup operations fail with 503 without it.
	Backups  Backups
	DeviceID string
}

// MutationFailure is a rejected optimistic change kept for the user to see.
type MutationFailure struct {
	Key     string    `json:"key"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Client is the process-wide context object. It is built once at startup and owns every
// piece of client state.
type Client struct {
	prefs       *prefs.Store
	backend     Backend
	cache       *cache.Cache
	coordinator *mutation.Coordinator
	channel     Channel
	inbox       *realtime.Inbox
	backups     Backups
	session     *session.Manager
	deviceID    string

	mu       sync.Mutex
	failures []MutationFailure
}

func New(opts Options) *Client {
	c := &Client{
		prefs:    opts.Prefs,
		backend:  opts.Backend,
		cache:    opts.Cache,
		channel:  opts.Channel,
		inbox:    opts.Inbox,
		backups:  opts.Backups,
		deviceID: opts.DeviceID,
	}
	if c.cache == nil {
		c.cache = cache.New(cache.Options{})
	}
	if c.inbox == nil {
		c.inbox = realtime.NewInbox(0)
	}
	c.coordinator = mutation.New(c.cache, c.recordFailure)
	c.session = session.New(c.prefs, c.backend, c.cache)
	c.session.OnChange(c.sessionChanged)
	return c
}

func (c *Client) sessionChanged(token string) {
	if token == "" {
		c.inbox.Clear()
		c.clearFailures()
		if c.channel != nil {
			c.channel.ClearToken()
		}
		return
	}
	if c.channel != nil {
		c.channel.SetToken(token)
	}
}

func (c *Client) Session() *session.Manager { return c.session }
func (c *Client) Prefs() *prefs.Store       { return c.prefs }
func (c *Client) Cache() *cache.Cache       { return c.cache }

func (c *Client) Cards(ctx context.Context) ([]api.Card, error) {
	return cache.As[[]api.Card](c.cache.Read(ctx, cache.KeyCards, func(ctx context.Context) (any, error) {
		return c.backend.Cards(ctx)
	}))
}

func (c *Client) Transactions(ctx context.Context) ([]api.Transaction, error) {
	return cache.As[[]api.Transaction](c.cache.Read(ctx, cache.KeyTransactions, func(ctx context.Context) (any, error) {
		return c.backend.Transactions(ctx)
	}))
}

func (c *Client) CardTransactions(ctx context.Context, cardID string) ([]api.Transaction, error) {
	key := cache.CardTransactionsKey(cardID)
	return cache.As[[]api.Transaction](c.cache.Read(ctx, key, func(ctx context.Context) (any, error) {
		return c.backend.CardTransactions(ctx, cardID)
	}))
}

func (c *Client) Subscriptions(ctx context.Context) ([]api.Subscription, error) {
	return cache.As[[]api.Subscription](c.cache.Read(ctx, cache.KeySubscriptions, func(ctx context.Context) (any, error) {
		return c.backend.Subscriptions(ctx)
	}))
}

func (c *Client) NotificationSettings(ctx context.Context) (api.NotificationSettings, error) {
	return cache.As[api.NotificationSettings](c.cache.Read(ctx, cache.KeyNotificationSettings, func(ctx context.Context) (any, error) {
		return c.backend.NotificationSettings(ctx)
	}))
}

// ToggleSubscription flips a subscription optimistically; the cached list shows the new
// state until the backend answers, and the previous list comes back if it refuses.
func (c *Client) ToggleSubscription(ctx context.Context, id string, enabled bool) error {
	if _, err := c.Subscriptions(ctx); err != nil {
		return err
	}
	return c.coordinator.Do(ctx, mutation.Mutation{
		Key: cache.KeySubscriptions,
		Apply: mutation.Update(func(subs []api.Subscription) ([]api.Subscription, error) {
			next, found := mutation.ReplaceItem(subs,
				func(s api.Subscription) bool { return s.ID == id },
				func(s api.Subscription) api.Subscription {
					s.Enabled = enabled
					return s
				},
			)
			if !found {
				return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Subscription not found", map[string]any{"id": id})
			}
			return next, nil
		}),
		Send: func(ctx context.Context) error {
			_, err := c.backend.ToggleSubscription(ctx, id, enabled)
			return err
		},
		Invalidate: []string{cache.KeyCards},
	})
}

func (c *Client) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return c.coordinator.Do(ctx, mutation.Mutation{
		Key: cache.KeyNotificationSettings,
		Apply: mutation.Update(func(settings api.NotificationSettings) (api.NotificationSettings, error) {
			settings.Enabled = enabled
			return settings, nil
		}),
		Send: func(ctx context.Context) error {
			_, err := c.backend.UpdateNotificationSettings(ctx, api.NotificationSettings{Enabled: enabled})
			return err
		},
	})
}

// CreateCard is not optimistic: the card id comes from the server.
func (c *Client) CreateCard(ctx context.Context, req api.CreateCardRequest) (api.Card, error) {
	if !req.Type.Valid() {
		return api.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown card type", map[string]any{"type": req.Type})
	}
	card, err := c.backend.CreateCard(ctx, req)
	if err != nil {
		return api.Card{}, err
	}
	c.cache.Invalidate(cache.KeyCards)
	return card, nil
}

func (c *Client) RegisterNotificationToken(ctx context.Context, token api.NotificationToken) error {
	return c.backend.RegisterNotificationToken(ctx, token)
}

func (c *Client) BankConnect(ctx context.Context, req api.BankConnectRequest) (api.BankConnection, error) {
	conn, err := c.backend.BankConnect(ctx, req)
	if err != nil {
		return api.BankConnection{}, err
	}
	c.cache.InvalidatePrefix(cache.KeyTransactions)
	return conn, nil
}

func (c *Client) YearInReview(ctx context.Context, year int) (review.Summary, error) {
	transactions, err := c.Transactions(ctx)
	if err != nil {
		return review.Summary{}, err
	}
	return review.Summarize(transactions, year), nil
}

// Focus is called when the app comes back to the foreground.
func (c *Client) Focus() int {
	return c.cache.RevalidateStale()
}

// Reconnected is called when network connectivity returns.
func (c *Client) Reconnected() int {
	if token := c.session.Token(); token != "" && c.channel != nil {
		c.channel.SetToken(token)
	}
	return c.cache.RevalidateStale()
}

func (c *Client) Watch(key string, fn func(cache.Entry)) func() {
	return c.cache.Watch(key, fn)
}

func (c *Client) Notifications() []realtime.Notification {
	return c.inbox.List()
}

func (c *Client) ClearNotifications() int {
	return c.inbox.Clear()
}

func (c *Client) ChannelState() realtime.State {
	if c.channel == nil {
		return realtime.Disconnected
	}
	return c.channel.State()
}

func (c *Client) BackupPreferences(ctx context.Context) (backup.Document, error) {
	if c.backups == nil {
		return backup.Document{}, errBackupUnavailable
	}
	snapshot, err := c.prefs.Snapshot(ctx)
	if err != nil {
		return backup.Document{}, err
	}
	return c.backups.Backup(ctx, c.deviceID, snapshot)
}

// RestorePreferences replaces local preferences with the device's backup and reports how
// many were written.
func (c *Client) RestorePreferences(ctx context.Context) (int, error) {
	if c.backups == nil {
		return 0, errBackupUnavailable
	}
	doc, err := c.backups.Restore(ctx, c.deviceID)
	if err != nil {
		return 0, err
	}
	return c.prefs.Restore(ctx, doc.Preferences), nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.prefs.Ping(ctx)
}

func (c *Client) Close() error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Close()
}

func (c *Client) recordFailure(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, MutationFailure{Key: key, Message: err.Error(), At: time.Now().UTC()})
	if len(c.failures) > maxFailures {
		c.failures = c.failures[len(c.failures)-maxFailures:]
	}
}

// Failures lists rejected mutations, oldest first.
func (c *Client) Failures() []MutationFailure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MutationFailure(nil), c.failures...)
}

func (c *Client) clearFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = nil
}
