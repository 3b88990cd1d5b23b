package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/inboxd/internal/core/domain"
	"github.com/vietddude/inboxd/internal/ingest/metrics"
)

// Config holds OAuth2 client-credentials settings.
type Config struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TenantID     string        `yaml:"tenant_id"`
	Authority    string        `yaml:"authority"`
	Scope        string        `yaml:"scope"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

// Credential is a bearer token with its expiry.
type Credential struct {
	Token  string
	Expiry time.Time
}

// Manager owns the single bearer credential for the mail API. Token
// serializes refreshes: concurrent callers during an expired window
// block on the mutex and reuse the one refreshed credential.
type Manager struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	mu   sync.Mutex
	cred Credential

	// Overridable in tests.
	now func() time.Time
}

// NewManager creates a credential manager.
func NewManager(cfg Config) *Manager {
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = 5 * time.Minute
	}
	if cfg.Authority == "" {
		cfg.Authority = "https://login.microsoftonline.com"
	}
	if cfg.Scope == "" {
		cfg.Scope = "https://graph.microsoft.com/.default"
	}
	return &Manager{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default().With("component", "auth"),
		now: time.Now,
	}
}

// Token returns a credential valid for at least the safety margin.
// A credential inside the margin triggers a synchronous refresh first.
func (m *Manager) Token(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Token != "" && m.now().Add(m.cfg.SafetyMargin).Before(m.cred.Expiry) {
		return m.cred, nil
	}

	cred, err := m.refresh(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return Credential{}, err
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	m.cred = cred
	return cred, nil
}

// Invalidate forces the next Token call to refresh regardless of the
// cached expiry. Called after an observed 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	m.log.Debug("Credential invalidated")
}

func (m *Manager) refresh(ctx context.Context) (Credential, error) {
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		strings.TrimRight(m.cfg.Authority, "/"), m.cfg.TenantID)

	form := url.Values{}
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)
	form.Set("scope", m.cfg.Scope)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &domain.AuthError{Reason: "create token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := m.now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Credential{}, &domain.AuthError{Reason: "token request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &domain.AuthError{Reason: "read token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &domain.AuthError{
			Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Credential{}, &domain.AuthError{Reason: "parse token response", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return Credential{}, &domain.AuthError{Reason: "token response missing access_token"}
	}

	cred := Credential{
		Token:  tokenResp.AccessToken,
		Expiry: m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	m.log.Info("Credential refreshed",
		"expires_in", tokenResp.ExpiresIn,
		"latency", m.now().Sub(start))
	return cred, nil
}
