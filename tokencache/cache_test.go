package tokencache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tytsxai/proxycast/credential"
)

type countingRefresher struct {
	calls atomic.Int32
	delay time.Duration
}

func (r *countingRefresher) Refresh(ctx context.Context, cred credential.Credential, current Entry) (Entry, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return Entry{AccessToken: "fresh-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestPoolWithCredential() (*credential.Pool, uuid.UUID) {
	pool := credential.NewPool(credential.ClaudeOAuth)
	id := uuid.New()
	_ = pool.Add(&credential.Credential{ID: id, Kind: credential.ClaudeOAuth, Payload: credential.OAuthFile{Path: "/tmp/x"}, Status: credential.Active()})
	return pool, id
}

func TestCache_ReturnsValidEntryWithoutRefreshing(t *testing.T) {
	pool, id := newTestPoolWithCredential()
	r := &countingRefresher{}
	c := New(pool)
	c.Register(credential.ClaudeOAuth, r)
	c.Seed(id, Entry{AccessToken: "still-good", Expiry: time.Now().Add(time.Hour)})

	token, err := c.GetValidToken(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if token != "still-good" {
		t.Fatalf("expected cached token, got %q", token)
	}
	if r.calls.Load() != 0 {
		t.Fatalf("expected no refresh calls, got %d", r.calls.Load())
	}
}

func TestCache_RefreshesExpiredEntry(t *testing.T) {
	pool, id := newTestPoolWithCredential()
	r := &countingRefresher{}
	c := New(pool)
	c.Register(credential.ClaudeOAuth, r)
	c.Seed(id, Entry{AccessToken: "stale", Expiry: time.Now().Add(-time.Minute)})

	token, err := c.GetValidToken(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if token != "fresh-token" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", r.calls.Load())
	}
}

func TestCache_ConcurrentCallsShareOneRefresh(t *testing.T) {
	pool, id := newTestPoolWithCredential()
	r := &countingRefresher{delay: 50 * time.Millisecond}
	c := New(pool)
	c.Register(credential.ClaudeOAuth, r)

	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _ = c.GetValidToken(context.Background(), id)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if r.calls.Load() != 1 {
		t.Fatalf("expected exactly one network refresh across all callers, got %d", r.calls.Load())
	}
}

func TestEntry_ValidityMargin(t *testing.T) {
	fresh := Entry{Expiry: time.Now().Add(10 * time.Minute)}
	if !fresh.Valid() {
		t.Fatal("expected entry with 10 minutes left to be valid")
	}
	nearExpiry := Entry{Expiry: time.Now().Add(2 * time.Minute)}
	if nearExpiry.Valid() {
		t.Fatal("expected entry within the 5 minute margin to be invalid")
	}
}
