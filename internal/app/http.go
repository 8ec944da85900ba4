package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cvrd/client/internal/api"
	"cvrd/client/internal/prefs"
)

type HTTPServer struct {
	client     *Client
	corsOrigin string
}

func NewHTTPServer(client *Client, corsOrigin string) *HTTPServer {
	return &HTTPServer{client: client, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "session":
		s.handleSession(w, r, parts[2:])
	case "preferences":
		s.handlePreferences(w, r, parts[2:])
	case "customizations":
		s.handleCustomizations(w, r, parts[2:])
	case "notifications":
		s.handleNotifications(w, r, parts[2:])
	case "cache":
		s.handleCache(w, r, parts[2:])
	case "errors":
		if r.Method != http.MethodGet || len(parts) != 2 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"failures": s.client.Failures()})
	case "backup":
		s.handleBackup(w, r, parts[2:])
	default:
		if !s.requireSession(w) {
			return
		}
		s.handleResources(w, r, parts[1:])
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"preferences": map[string]any{"status": "ok"},
		"realtime":    map[string]any{"status": s.client.ChannelState().String()},
	}
	if err := s.client.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["preferences"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter) bool {
	if s.client.Session().Token() == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in first", nil)
		return false
	}
	return true
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, parts []string) {
	sessions := s.client.Session()

	if r.Method == http.MethodGet && len(parts) == 0 {
		user, ok := sessions.User()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          user,
			"realtime":      s.client.ChannelState().String(),
		})
		return
	}

	if r.Method != http.MethodPost || len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[0] {
	case "login":
		var body api.Credentials
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := sessions.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
	case "signup":
		var body api.SignupRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := sessions.Signup(r.Context(), body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"authenticated": true, "user": user})
	case "restore":
		user, err := sessions.Restore(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
	case "logout":
		sessions.Logout(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePreferences(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	p := s.client.Prefs()

	if len(parts) == 0 && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"appearanceMode":   p.AppearanceMode(ctx),
			"hidePauseWarning": p.HidePauseWarning(ctx),
			"sectionOrder":     p.SectionOrder(ctx),
		})
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[0] == "appearance" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"mode": p.AppearanceMode(ctx)})
	case parts[0] == "appearance" && r.Method == http.MethodPut:
		var body struct {
			Mode string `json:"mode"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := p.SetAppearanceMode(ctx, prefs.AppearanceMode(body.Mode)); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mode": p.AppearanceMode(ctx)})

	case parts[0] == "pause-warning" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"hide": p.HidePauseWarning(ctx)})
	case parts[0] == "pause-warning" && r.Method == http.MethodPut:
		var body struct {
			Hide bool `json:"hide"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		persisted := p.SetHidePauseWarning(ctx, body.Hide)
		writeJSON(w, http.StatusOK, map[string]any{"hide": body.Hide, "persisted": persisted})

	case parts[0] == "section-order" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"order": p.SectionOrder(ctx)})
	case parts[0] == "section-order" && r.Method == http.MethodPut:
		var body struct {
			Order []prefs.Section `json:"order"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := p.SetSectionOrder(ctx, body.Order); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": p.SectionOrder(ctx)})
	case parts[0] == "section-order" && r.Method == http.MethodDelete:
		p.ResetSectionOrder(ctx)
		writeJSON(w, http.StatusOK, map[string]any{"order": p.SectionOrder(ctx)})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCustomizations(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	p := s.client.Prefs()

	if len(parts) == 0 && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{"customizations": p.AllCustomizations(ctx)})
		return
	}
	if len(parts) != 1 || strings.TrimSpace(parts[0]) == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	cardID := parts[0]

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, p.GetCustomization(ctx, cardID))
	case http.MethodPut:
		var body struct {
			Emojis []string      `json:"emojis"`
			Colors []prefs.Color `json:"colors"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		persisted := p.SaveCustomization(ctx, cardID, body.Emojis, body.Colors)
		writeJSON(w, http.StatusOK, map[string]any{
			"customization": p.GetCustomization(ctx, cardID),
			"persisted":     persisted,
		})
	case http.MethodDelete:
		persisted := p.ResetCardCustomization(ctx, cardID)
		writeJSON(w, http.StatusOK, map[string]any{
			"customization": p.GetCustomization(ctx, cardID),
			"persisted":     persisted,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"notifications": s.client.Notifications(),
			"realtime":      s.client.ChannelState().String(),
		})
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, map[string]any{"cleared": s.client.ClearNotifications()})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleCache(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		entries := s.client.Cache().Entries()
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			item := map[string]any{
				"key":         e.Key,
				"hasData":     e.HasData,
				"fetchedAt":   e.FetchedAt,
				"updatedAt":   e.UpdatedAt,
				"invalidated": e.Invalidated,
				"fetching":    e.Fetching,
			}
			if e.Err != nil {
				item["error"] = e.Err.Error()
			}
			out = append(out, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": out})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "focus":
		writeJSON(w, http.StatusOK, map[string]any{"revalidating": s.client.Focus()})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "reconnected":
		writeJSON(w, http.StatusOK, map[string]any{"revalidating": s.client.Reconnected()})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "invalidate":
		var body struct {
			Keys   []string `json:"keys"`
			Prefix string   `json:"prefix"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.client.Cache().Invalidate(body.Keys...)
		if body.Prefix != "" {
			s.client.Cache().InvalidatePrefix(body.Prefix)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleBackup(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	switch {
	case len(parts) == 0:
		doc, err := s.client.BackupPreferences(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"deviceId":    doc.DeviceID,
			"createdAt":   doc.CreatedAt,
			"preferences": len(doc.Preferences),
		})
	case len(parts) == 1 && parts[0] == "restore":
		restored, err := s.client.RestorePreferences(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"restored": restored})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleResources serves the backend-backed collections. parts starts after /api.
func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	var (
		payload any
		status  = http.StatusOK
		err     error
	)

	switch {
	case parts[0] == "cards" && len(parts) == 1 && r.Method == http.MethodGet:
		var cards []api.Card
		cards, err = s.client.Cards(ctx)
		payload = map[string]any{"cards": cards}
	case parts[0] == "cards" && len(parts) == 1 && r.Method == http.MethodPost:
		var body struct {
			Type api.CardType `json:"type"`
			api.CreateCardRequest
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		req := body.CreateCardRequest
		req.Type = body.Type
		var card api.Card
		card, err = s.client.CreateCard(ctx, req)
		payload, status = card, http.StatusCreated
	case parts[0] == "cards" && len(parts) == 3 && parts[2] == "transactions" && r.Method == http.MethodGet:
		var txs []api.Transaction
		txs, err = s.client.CardTransactions(ctx, parts[1])
		payload = map[string]any{"transactions": txs}
	case parts[0] == "transactions" && len(parts) == 1 && r.Method == http.MethodGet:
		var txs []api.Transaction
		txs, err = s.client.Transactions(ctx)
		payload = map[string]any{"transactions": txs}
	case parts[0] == "subscriptions" && len(parts) == 1 && r.Method == http.MethodGet:
		var subs []api.Subscription
		subs, err = s.client.Subscriptions(ctx)
		payload = map[string]any{"subscriptions": subs}
	case parts[0] == "subscriptions" && len(parts) == 3 && parts[2] == "toggle" && r.Method == http.MethodPost:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err = s.client.ToggleSubscription(ctx, parts[1], body.Enabled); err == nil {
			var subs []api.Subscription
			subs, err = s.client.Subscriptions(ctx)
			payload = map[string]any{"subscriptions": subs}
		}
	case parts[0] == "notification-settings" && len(parts) == 1 && r.Method == http.MethodGet:
		payload, err = s.client.NotificationSettings(ctx)
	case parts[0] == "notification-settings" && len(parts) == 1 && r.Method == http.MethodPut:
		var body api.NotificationSettings
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err = s.client.SetNotificationsEnabled(ctx, body.Enabled); err == nil {
			payload, err = s.client.NotificationSettings(ctx)
		}
	case parts[0] == "notification-token" && len(parts) == 1 && r.Method == http.MethodPost:
		var body api.NotificationToken
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err = s.client.RegisterNotificationToken(ctx, body)
		payload = map[string]any{"ok": err == nil}
	case parts[0] == "bank-connect" && len(parts) == 1 && r.Method == http.MethodPost:
		var body api.BankConnectRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err = s.client.BankConnect(ctx, body)
	case parts[0] == "review" && len(parts) == 2 && r.Method == http.MethodGet:
		year, convErr := strconv.Atoi(parts[1])
		if convErr != nil || year < 2000 || year > 9999 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "year must be a four digit number", nil)
			return
		}
		payload, err = s.client.YearInReview(ctx, year)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if err != nil {
		status, code, message, details := mapError(err)
		if status >= http.StatusInternalServerError {
			log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
		}
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
