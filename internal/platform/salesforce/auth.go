package salesforce

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies bearer tokens for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token, for tests and pre-issued sessions.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// JWTBearerSource implements the OAuth 2.0 JWT bearer flow: a short-lived
// RS256 assertion signed with the connected app's private key is exchanged
// for an access token at the login server. Tokens are cached and refreshed
// shortly before expiry.
type JWTBearerSource struct {
	LoginURL string // e.g. https://login.salesforce.com
	ClientID string // connected app consumer key
	Username string
	Key      *rsa.PrivateKey

	httpc *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewJWTBearerSource(loginURL, clientID, username string, key *rsa.PrivateKey) *JWTBearerSource {
	return &JWTBearerSource{
		LoginURL: loginURL,
		ClientID: clientID,
		Username: username,
		Key:      key,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a cached access token, exchanging a fresh assertion when
// the cache is empty or close to expiring.
func (s *JWTBearerSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expires) {
		return s.token, nil
	}

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": s.ClientID,
		"sub": s.Username,
		"aud": s.LoginURL,
		"exp": now.Add(3 * time.Minute).Unix(),
	})
	signed, err := assertion.SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {signed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.LoginURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token exchange: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access token")
	}

	// Session TTL is governed server-side; refresh conservatively.
	s.token = payload.AccessToken
	s.expires = now.Add(25 * time.Minute)
	return s.token, nil
}
