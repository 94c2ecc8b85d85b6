package tokencache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileEntry is the on-disk shape of an OAuth credential file (the file
// credential.OAuthFile.Path points at): whatever the provider's own CLI
// login flow wrote, reduced to the three fields every refresh flow needs.
type fileEntry struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds; 0 means already expired
}

// LoadEntryFromFile reads path and returns the Entry to Seed the cache
// with, so the very first request doesn't have to wait on a refresh round
// trip when the file already carries a live access token.
func LoadEntryFromFile(path string) (Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("tokencache: read oauth file %s: %w", path, err)
	}
	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		return Entry{}, fmt.Errorf("tokencache: parse oauth file %s: %w", path, err)
	}
	return Entry{
		AccessToken:  fe.AccessToken,
		RefreshToken: fe.RefreshToken,
		Expiry:       time.Unix(fe.ExpiresAt, 0),
	}, nil
}
