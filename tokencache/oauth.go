package tokencache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// RefreshEncoding selects the request body shape an OAuth token endpoint
// expects for a refresh_token grant.
type RefreshEncoding int

const (
	EncodingJSON RefreshEncoding = iota
	EncodingForm
)

// OAuthRefresher implements the generic {client_id, grant_type, refresh_token}
// POST protocol used by every non-Vertex OAuth provider in §4.2.
type OAuthRefresher struct {
	HTTPClient *http.Client
	TokenURL   string
	ClientID   string
	Encoding   RefreshEncoding
}

type oauthRefreshRequest struct {
	ClientID     string `json:"client_id"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type oauthRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r *OAuthRefresher) Refresh(ctx context.Context, cred credential.Credential, current Entry) (Entry, error) {
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var body io.Reader
	contentType := "application/json"
	if r.Encoding == EncodingForm {
		form := url.Values{}
		form.Set("client_id", r.ClientID)
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", current.RefreshToken)
		body = bytes.NewBufferString(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		b, err := json.Marshal(oauthRefreshRequest{
			ClientID:     r.ClientID,
			GrantType:    "refresh_token",
			RefreshToken: current.RefreshToken,
		})
		if err != nil {
			return Entry{}, errs.FromParse(err, string(cred.Kind))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, body)
	if err != nil {
		return Entry{}, errs.FromNetwork(err, string(cred.Kind))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, errs.FromNetwork(err, string(cred.Kind))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Entry{}, errs.FromHTTPStatus(resp.StatusCode, string(respBody), string(cred.Kind))
	}

	var parsed oauthRefreshResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Entry{}, errs.FromParse(err, string(cred.Kind))
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken // not rotated
	}

	return Entry{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

var _ Refresher = (*OAuthRefresher)(nil)
