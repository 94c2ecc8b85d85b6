package tokencache

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// VertexRefresher mints a signed JWT assertion for a Google service account
// and exchanges it at the account's token endpoint, per the
// ServiceAccountJWT contract implied by the Vertex credential kind.
type VertexRefresher struct {
	HTTPClient *http.Client
	Scope      string // e.g. "https://www.googleapis.com/auth/cloud-platform"
}

const googleAssertionGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

func (r *VertexRefresher) Refresh(ctx context.Context, cred credential.Credential, current Entry) (Entry, error) {
	sa, ok := cred.Payload.(credential.VertexServiceAccount)
	if !ok {
		return Entry{}, fmt.Errorf("tokencache: credential %s is not a VertexServiceAccount", cred.ID)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return Entry{}, fmt.Errorf("tokencache: parse vertex private key: %w", err)
	}

	assertion, err := r.mintAssertion(sa, key)
	if err != nil {
		return Entry{}, err
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{}
	form.Set("grant_type", googleAssertionGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return Entry{}, errs.FromNetwork(err, "vertex")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, errs.FromNetwork(err, "vertex")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Entry{}, errs.FromHTTPStatus(resp.StatusCode, string(body), "vertex")
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Entry{}, errs.FromParse(err, "vertex")
	}

	return Entry{
		AccessToken: parsed.AccessToken,
		Expiry:      time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

func (r *VertexRefresher) mintAssertion(sa credential.VertexServiceAccount, key *rsa.PrivateKey) (string, error) {
	scope := r.Scope
	if scope == "" {
		scope = "https://www.googleapis.com/auth/cloud-platform"
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"scope": scope,
		"aud":   sa.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = sa.PrivateKeyID
	return token.SignedString(key)
}

var _ Refresher = (*VertexRefresher)(nil)
