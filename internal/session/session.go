// Package session manages the authenticated Frndly TV session: the
// two-step login handshake, local TTL-based validity, and advisory
// persistence across process restarts.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the production Frndly TV API host.
const DefaultBaseURL = "https://frndlytv-api.revlet.net"

// Legacy device-emulation identity the upstream requires on every
// call. The service only issues tokens to known device profiles.
const (
	boxID         = "SHIELD30X8X4X0"
	tenantCode    = "frndlytv"
	deviceID      = "43"
	deviceSubType = "nvidia,8.1.0,7.4.4"
	osVersion     = "8.1.0"
	appVersion    = "7.4.4"
	manufacturer  = "nvidia"
	userAgent     = "okhttp/3.12.5"

	requestTimeout  = 15 * time.Second
	sessionFileName = "session.json"
)

// AuthError reports a failed login handshake, carrying the upstream
// message when one was provided.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Message
}

// Credentials are the upstream username and secret. Immutable once
// supplied; replacing them invalidates any active session.
type Credentials struct {
	Username string
	Password string
}

// Session is an opaque upstream token and the time it was acquired.
type Session struct {
	ID         string
	AcquiredAt time.Time
}

// Valid reports whether the session can still be used at now. This is
// a local time-based judgment; no upstream validation call is made.
func (s Session) Valid(now time.Time, ttl time.Duration) bool {
	return s.ID != "" && now.Sub(s.AcquiredAt) < ttl
}

// persistedSession is the on-disk JSON form.
type persistedSession struct {
	SessionID string `json:"session_id"`
	LastLogin int64  `json:"last_login"`
}

// Manager owns the credentials and current session token.
type Manager struct {
	log        logrus.FieldLogger
	creds      Credentials
	ttl        time.Duration
	path       string // persisted session file, "" disables persistence
	baseURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	current Session
}

// NewManager creates a session manager. dataDir may be empty to
// disable persistence; baseURL overrides the upstream host for tests.
func NewManager(log logrus.FieldLogger, creds Credentials, dataDir string, ttl time.Duration, baseURL string) *Manager {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	path := ""
	if dataDir != "" {
		path = filepath.Join(dataDir, sessionFileName)
	}

	return &Manager{
		log:     log.WithField("component", "session"),
		creds:   creds,
		ttl:     ttl,
		path:    path,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Headers returns the device-identity headers plus the session token
// when a valid one is held.
func (m *Manager) Headers() http.Header {
	headers := deviceHeaders()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current.Valid(time.Now(), m.ttl) {
		headers.Set("session-id", m.current.ID)
	}

	return headers
}

func deviceHeaders() http.Header {
	headers := http.Header{}
	headers.Set("user-agent", userAgent)
	headers.Set("box-id", boxID)
	headers.Set("tenant-code", tenantCode)

	return headers
}

// Current returns the held session and whether it is still valid.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.current.Valid(time.Now(), m.ttl)
}

// IsValid reports whether a valid session is held.
func (m *Manager) IsValid() bool {
	_, ok := m.Current()

	return ok
}

// Login performs the two-step handshake: obtain a bootstrap token
// bound to the device identity, then exchange the credentials for an
// authenticated session using that token as the bearer. Safe to call
// concurrently; the last successful login wins.
func (m *Manager) Login(ctx context.Context) (Session, error) {
	if m.creds.Username == "" || m.creds.Password == "" {
		return Session{}, &AuthError{Message: "username and password are required"}
	}

	m.log.Info("Logging in")

	bootstrap, err := m.fetchBootstrapToken(ctx)
	if err != nil {
		return Session{}, err
	}

	if err := m.signIn(ctx, bootstrap); err != nil {
		return Session{}, err
	}

	sess := Session{ID: bootstrap, AcquiredAt: time.Now()}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.log.Info("Login successful")
	m.Persist()

	return sess, nil
}

// fetchBootstrapToken requests a device-bound token from the token
// endpoint.
func (m *Manager) fetchBootstrapToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("box_id", boxID)
	params.Set("device_id", deviceID)
	params.Set("tenant_code", tenantCode)
	params.Set("device_sub_type", deviceSubType)
	params.Set("product", tenantCode)
	params.Set("display_lang_code", "eng")
	params.Set("timezone", "America/New_York")

	endpoint := m.baseURL + "/service/api/v1/get/token?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &AuthError{Message: fmt.Sprintf("failed to get session token: %v", err)}
	}

	req.Header = deviceHeaders()

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Message: fmt.Sprintf("failed to get session token: %v", err)}
	}
	defer resp.Body.Close()

	var body struct {
		Response struct {
			SessionID string `json:"sessionId"`
		} `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &AuthError{Message: fmt.Sprintf("failed to get session token: %v", err)}
	}

	if body.Response.SessionID == "" {
		return "", &AuthError{Message: "failed to get session token: empty sessionId"}
	}

	return body.Response.SessionID, nil
}

// signIn exchanges credentials for an authenticated session using the
// bootstrap token as the bearer.
func (m *Manager) signIn(ctx context.Context, bootstrap string) error {
	payload := map[string]any{
		"login_id":     m.creds.Username,
		"login_key":    m.creds.Password,
		"login_mode":   1,
		"os_version":   osVersion,
		"app_version":  appVersion,
		"manufacturer": manufacturer,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("login request failed: %v", err)}
	}

	endpoint := m.baseURL + "/service/api/auth/signin"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("login request failed: %v", err)}
	}

	req.Header = deviceHeaders()
	req.Header.Set("session-id", bootstrap)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("login request failed: %v", err)}
	}
	defer resp.Body.Close()

	var body struct {
		Status bool `json:"status"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &AuthError{Message: fmt.Sprintf("login request failed: %v", err)}
	}

	if !body.Status {
		msg := body.Error.Message
		if msg == "" {
			msg = "unknown login error"
		}

		return &AuthError{Message: msg}
	}

	return nil
}

// Persist writes the current session to the data directory. Failures
// are logged and ignored; persistence is advisory.
func (m *Manager) Persist() {
	if m.path == "" {
		return
	}

	m.mu.RLock()
	record := persistedSession{
		SessionID: m.current.ID,
		LastLogin: m.current.AcquiredAt.Unix(),
	}
	m.mu.RUnlock()

	data, err := json.Marshal(record)
	if err != nil {
		m.log.WithError(err).Warn("Failed to encode session")

		return
	}

	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		m.log.WithError(err).Warn("Failed to persist session")

		return
	}

	m.log.Debug("Session persisted")
}

// Restore loads a persisted session, re-validating its TTL from the
// stored timestamp. Returns false when no usable session exists.
func (m *Manager) Restore() bool {
	if m.path == "" {
		return false
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.WithError(err).Warn("Failed to read persisted session")
		}

		return false
	}

	var record persistedSession
	if err := json.Unmarshal(data, &record); err != nil {
		m.log.WithError(err).Warn("Failed to decode persisted session")

		return false
	}

	sess := Session{ID: record.SessionID, AcquiredAt: time.Unix(record.LastLogin, 0)}
	if !sess.Valid(time.Now(), m.ttl) {
		m.log.Debug("Persisted session expired, ignoring")

		return false
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.log.Info("Session restored from disk")

	return true
}

// Logout clears the held session and removes the persisted file.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()

	if m.path != "" {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			m.log.WithError(err).Warn("Failed to remove persisted session")
		}
	}

	m.log.Info("Logged out")
}
