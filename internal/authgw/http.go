package authgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flavien-hugs/apikey-hub/internal/config"
)

// HTTPGateway calls the remote access-control service over HTTP.
type HTTPGateway struct {
	baseURL         string
	checkAccessPath string
	verifyTokenPath string
	client          *http.Client
}

// NewHTTPGateway builds a gateway client from configuration.
func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL:         cfg.BaseURL,
		checkAccessPath: cfg.CheckAccessPath,
		verifyTokenPath: cfg.VerifyTokenPath,
		client:          &http.Client{Timeout: cfg.Timeout},
	}
}

// CheckAccess asks the gateway whether the token holds all permissions.
func (g *HTTPGateway) CheckAccess(ctx context.Context, bearerToken string, permissions []string) (bool, error) {
	if IsPlaceholder(bearerToken) {
		return false, ErrAccessDenied
	}

	body, err := json.Marshal(map[string]interface{}{"permissions": permissions})
	if err != nil {
		return false, fmt.Errorf("marshal check-access request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+g.checkAccessPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build check-access request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("check access: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Access bool `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode check-access response: %w", err)
	}
	return out.Access, nil
}

// VerifyToken resolves the caller identity behind the bearer token.
func (g *HTTPGateway) VerifyToken(ctx context.Context, bearerToken string) (TokenInfo, error) {
	if IsPlaceholder(bearerToken) {
		return TokenInfo{}, ErrAccessDenied
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+g.verifyTokenPath, nil)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("build verify-token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return TokenInfo{}, ErrAccessDenied
	default:
		return TokenInfo{}, fmt.Errorf("verify token: unexpected status %d", resp.StatusCode)
	}

	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return TokenInfo{}, fmt.Errorf("decode verify-token response: %w", err)
	}
	if !info.Active {
		return TokenInfo{}, ErrAccessDenied
	}
	return info, nil
}
