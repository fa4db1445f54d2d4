// Package auth resolves bearer credentials to user ids.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rl1809/scan-sync/internal/port"
)

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// StaticVerifier checks tokens against a fixed table.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// ParseTokens reads "token=user,token2=user2".
func ParseTokens(list string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid token entry %q, want token=user", pair)
		}
		tokens[token] = user
	}
	return tokens, nil
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", port.ErrUnauthorized
	}
	for known, user := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", port.ErrUnauthorized
}

// RemoteVerifier asks an auth service who owns the token with
// GET {url} and Authorization: Bearer {token}. The service answers
// { "id": "..." }.
type RemoteVerifier struct {
	url    string
	client *http.Client
}

func NewRemoteVerifier(url string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteVerifier{url: url, client: client}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", port.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", port.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verify token: auth service returned %d", resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if user.ID == "" {
		return "", port.ErrUnauthorized
	}
	return user.ID, nil
}
