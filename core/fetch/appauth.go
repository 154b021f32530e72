package fetch

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
)

// TokenSource yields an authorization token for origin requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource around a personal access token
type StaticToken string

// Token returns the token itself
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// AppAuth mints GitHub App installation tokens. The app's private key signs
// a short-lived app JWT which is exchanged for an installation token; the
// installation token is cached until shortly before it expires.
type AppAuth struct {
	appID          string
	installationID string
	key            *rsa.PrivateKey
	client         *http.Client
	apiURL         string

	lock    sync.Mutex
	token   string
	expires time.Time
}

// NewAppAuth creates an installation token source from the app's PEM
// encoded private key
func NewAppAuth(appID, installationID string, pemKey []byte) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("app auth: parse private key: %w", err)
	}
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		key:            key,
		client:         &http.Client{Timeout: 30 * time.Second},
		apiURL:         "https://api.github.com",
	}, nil
}

// Token returns a valid installation token, minting a new one when the
// cached token is within a minute of expiry
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.token != "" && time.Until(a.expires) > time.Minute {
		return a.token, nil
	}

	appJWT, err := a.appJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", a.apiURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("app auth: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+appJWT)

	res, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("app auth: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("app auth: unexpected status %d", res.StatusCode)
	}

	var grant struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(res.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("app auth: decode grant: %w", err)
	}

	a.token = grant.Token
	a.expires = grant.ExpiresAt
	return a.token, nil
}

// appJWT signs the app-level JWT. GitHub rejects tokens living longer than
// ten minutes, and clock skew eats into the window, hence nine.
func (a *AppAuth) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("app auth: sign: %w", err)
	}
	return signed, nil
}
