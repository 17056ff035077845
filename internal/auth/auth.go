// Package auth reads the externally issued API token and the user it belongs to.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Makepad-fr/tada/internal/config"
)

const (
	credFileName = "credentials.json"
	// TokenEnv overrides the stored token.
	TokenEnv = "TADA_TOKEN"
)

var (
	// ErrNoToken means neither TADA_TOKEN nor a credentials file is present.
	ErrNoToken = errors.New("no token found. Set TADA_TOKEN or run `tada auth login`")
	// ErrNoUser means no user id is configured and the token does not carry one.
	ErrNoUser = errors.New("no user id: set user_id in config, TADA_USER_ID, or -user")
)

type TokenInfo struct {
	Token     string     `json:"token"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"` // optional (JWT or server-provided)
}

func credFilePath() (string, error) {
	dir, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credFileName), nil
}

// GetToken returns the token from TADA_TOKEN or the credentials file.
// It returns nil, nil when there is none.
func GetToken() (*TokenInfo, error) {
	// 1) env override
	env := strings.TrimSpace(os.Getenv(TokenEnv))
	if env != "" {
		ti := &TokenInfo{Token: stripBearer(env), Source: "env"}
		ti.ExpiresAt = expiry(ti.Token)
		return ti, nil
	}

	// 2) file
	p, err := credFilePath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	return &ti, nil
}

// SetToken stores token in the credentials file with owner-only permissions.
// A nil expires is filled from the token's exp claim when it is a JWT.
func SetToken(token string, expires *time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("empty token")
	}
	dir, err := config.HomeDir()
	if err != nil {
		return err
	}
	// ensure ~/.tada exists with 0700
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if expires == nil {
		expires = expiry(token)
	}
	ti := TokenInfo{
		Token:     token,
		Source:    "file",
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p, err := credFilePath()
	if err != nil {
		return err
	}
	// write with 0600 (owner-only)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// DeleteToken removes the credentials file. A missing file is not an error.
func DeleteToken() error {
	p, err := credFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Claims decodes a JWT payload without verifying the signature.
// The server verifies tokens; the client only reads them.
func Claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}

// UserIDFromToken reads the userId (or numeric sub) claim.
func UserIDFromToken(token string) (int, bool) {
	claims, err := Claims(token)
	if err != nil {
		return 0, false
	}
	for _, key := range []string{"userId", "user_id", "sub"} {
		if id, ok := claimInt(claims[key]); ok && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// ResolveUserID picks the configured id, falling back to the token's claims.
func ResolveUserID(configured int, ti *TokenInfo) (int, error) {
	if configured > 0 {
		return configured, nil
	}
	if ti != nil {
		if id, ok := UserIDFromToken(ti.Token); ok {
			return id, nil
		}
	}
	return 0, ErrNoUser
}

func claimInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := strconv.Atoi(x.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}

func expiry(token string) *time.Time {
	claims, err := Claims(token)
	if err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
