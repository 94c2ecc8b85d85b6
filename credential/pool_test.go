package credential

import (
	"testing"

	"github.com/google/uuid"
)

func newTestCredential() *Credential {
	return &Credential{
		ID:      uuid.New(),
		Kind:    OpenAI,
		Payload: APIKey{Key: "sk-test"},
		Status:  Active(),
	}
}

func TestPool_AddRejectsDuplicate(t *testing.T) {
	p := NewPool(OpenAI)
	c := newTestCredential()
	if err := p.Add(c); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := p.Add(c); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
}

func TestPool_SelectRoundRobinSkipsUnhealthy(t *testing.T) {
	p := NewPool(OpenAI)
	a, b, c := newTestCredential(), newTestCredential(), newTestCredential()
	for _, cr := range []*Credential{a, b, c} {
		if err := p.Add(cr); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.MarkUnhealthy(b.ID, "boom"); err != nil {
		t.Fatal(err)
	}

	seen := map[uuid.UUID]int{}
	for i := 0; i < 6; i++ {
		got, err := p.Select()
		if err != nil {
			t.Fatal(err)
		}
		seen[got.ID]++
	}
	if seen[b.ID] != 0 {
		t.Fatalf("unhealthy credential was selected: %v", seen)
	}
	if seen[a.ID] != 3 || seen[c.ID] != 3 {
		t.Fatalf("expected even round-robin across the two healthy credentials, got %v", seen)
	}
}

func TestPool_FailureThresholdTransitionsToUnhealthy(t *testing.T) {
	p := NewPool(OpenAI, WithFailureThreshold(2))
	c := newTestCredential()
	if err := p.Add(c); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordFailure(c.ID, "timeout"); err != nil {
		t.Fatal(err)
	}
	got, _ := p.Get(c.ID)
	if got.Status.Unhealthy {
		t.Fatal("credential became unhealthy after a single failure")
	}
	if err := p.RecordFailure(c.ID, "timeout"); err != nil {
		t.Fatal(err)
	}
	got, _ = p.Get(c.ID)
	if !got.Status.Unhealthy {
		t.Fatal("credential should be unhealthy after reaching the failure threshold")
	}
}

func TestPool_SuccessRestoresHealth(t *testing.T) {
	p := NewPool(OpenAI, WithFailureThreshold(1))
	c := newTestCredential()
	if err := p.Add(c); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordFailure(c.ID, "timeout"); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordSuccess(c.ID, 120); err != nil {
		t.Fatal(err)
	}
	got, _ := p.Get(c.ID)
	if got.Status.Unhealthy {
		t.Fatal("a success should restore Active status")
	}
	if got.Stats.ConsecutiveFailure != 0 {
		t.Fatalf("expected consecutive failure counter reset, got %d", got.Stats.ConsecutiveFailure)
	}
}

func TestPool_AllUnhealthyReturnsTentativePick(t *testing.T) {
	p := NewPool(OpenAI)
	a, b := newTestCredential(), newTestCredential()
	_ = p.Add(a)
	_ = p.Add(b)
	_ = p.MarkUnhealthy(a.ID, "x")
	_ = p.MarkUnhealthy(b.ID, "y")

	got, err := p.Select()
	if err != nil {
		t.Fatalf("expected a tentative pick, got error: %v", err)
	}
	if got.ID != a.ID && got.ID != b.ID {
		t.Fatal("tentative pick returned an unregistered credential")
	}
}

func TestPool_UnknownUUIDIsNonFatal(t *testing.T) {
	p := NewPool(OpenAI)
	if err := p.RecordFailure(uuid.New(), "x"); err == nil {
		t.Fatal("expected ErrNotFound for unknown uuid")
	}
	if err := p.RecordSuccess(uuid.New(), 1); err == nil {
		t.Fatal("expected ErrNotFound for unknown uuid")
	}
}

func TestPool_RecoverAll(t *testing.T) {
	p := NewPool(OpenAI)
	a, b := newTestCredential(), newTestCredential()
	_ = p.Add(a)
	_ = p.Add(b)
	_ = p.MarkUnhealthy(a.ID, "x")
	_ = p.MarkUnhealthy(b.ID, "y")

	if n := p.RecoverAll(); n != 2 {
		t.Fatalf("expected 2 recovered, got %d", n)
	}
	got, _ := p.Get(a.ID)
	if got.Status.Unhealthy {
		t.Fatal("credential still unhealthy after RecoverAll")
	}
}

func TestPool_EmptyPoolSelectError(t *testing.T) {
	p := NewPool(OpenAI)
	if _, err := p.Select(); err != ErrEmptyPool {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}
