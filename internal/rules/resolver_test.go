package rules

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/logger"
)

// memStore is an in-memory rule store for tests.
type memStore struct {
	saved   map[string]Rule
	deleted []string
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]Rule)}
}

func (s *memStore) SaveRule(ctx context.Context, r Rule) error {
	s.saved[r.Domain] = r
	return nil
}

func (s *memStore) DeleteRule(ctx context.Context, domain string) error {
	delete(s.saved, domain)
	s.deleted = append(s.deleted, domain)
	return nil
}

func (s *memStore) LoadRules(ctx context.Context) ([]Rule, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]Rule, 0, len(s.saved))
	for _, r := range s.saved {
		out = append(out, r)
	}
	return out, nil
}

func newTestResolver(t *testing.T) (*Resolver, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewResolver(store, logger.New("error", false)), store
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "Example.COM", want: "example.com"},
		{input: "  example.com  ", want: "example.com"},
		{input: "www.example.com", want: "example.com"},
		{input: "https://www.example.com/some/path?q=1", want: "example.com"},
		{input: "http://sub.example.com:8080/x", want: "sub.example.com"},
		{input: "example.com/path", wantErr: true},
		{input: "exa mple.com", wantErr: true},
		{input: "user@example.com", wantErr: true},
		{input: "example.com:443", wantErr: true},
		{input: ".example.com", wantErr: true},
		{input: "example.com.", wantErr: true},
		{input: "www.", wantErr: true},
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDomain) {
					t.Fatalf("Normalize(%q) error = %v, want ErrInvalidDomain", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolverAddNormalizesAndPersists(t *testing.T) {
	r, store := newTestResolver(t)

	if err := r.Add(context.Background(), "https://www.Example.com/login", ActionNeverClose, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if _, ok := store.saved["example.com"]; !ok {
		t.Errorf("rule not persisted under normalized domain, saved: %v", store.saved)
	}
}

func TestResolverAddDuplicateRejected(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if err := r.Add(ctx, "example.com", ActionNeverClose, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	// Same domain through a different spelling still collides.
	err := r.Add(ctx, "https://www.example.com", ActionAlwaysClose, 0)
	if !errors.Is(err, ErrRuleExists) {
		t.Errorf("Add() duplicate error = %v, want ErrRuleExists", err)
	}
}

func TestResolverAddRejectsInvalidRules(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if err := r.Add(ctx, "example.com", ActionCustomTimeout, 0); err == nil {
		t.Error("Add() custom-timeout without timeout should fail")
	}
	if err := r.Add(ctx, "example.com", RuleAction("nuke"), 0); err == nil {
		t.Error("Add() unknown action should fail")
	}
}

func TestResolverRemove(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	if err := r.Add(ctx, "example.com", ActionNeverClose, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	removed, err := r.Remove(ctx, "www.example.com")
	if err != nil || !removed {
		t.Fatalf("Remove() = (%v, %v), want (true, nil)", removed, err)
	}
	if diff := cmp.Diff([]string{"example.com"}, store.deleted); diff != "" {
		t.Errorf("deleted domains mismatch (-want +got):\n%s", diff)
	}

	removed, err = r.Remove(ctx, "example.com")
	if err != nil || removed {
		t.Errorf("Remove() absent = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestResolverResolvePrecedence(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	mustAdd := func(domain string, action RuleAction, timeout time.Duration) {
		t.Helper()
		if err := r.Add(ctx, domain, action, timeout); err != nil {
			t.Fatalf("Add(%q) error = %v", domain, err)
		}
	}
	mustAdd("example.com", ActionNeverClose, 0)
	mustAdd("app.example.com", ActionAlwaysClose, 0)

	tests := []struct {
		url        string
		wantDomain string
		wantMatch  bool
	}{
		{url: "https://example.com/x", wantDomain: "example.com", wantMatch: true},
		{url: "https://www.example.com/x", wantDomain: "example.com", wantMatch: true},
		// Exact match beats the suffix walk.
		{url: "https://app.example.com/dash", wantDomain: "app.example.com", wantMatch: true},
		// Deep subdomain falls through to a suffix match.
		{url: "https://a.b.app.example.com/", wantDomain: "app.example.com", wantMatch: true},
		// Suffix match needs a dot boundary.
		{url: "https://notexample.com/", wantMatch: false},
		{url: "https://other.org/", wantMatch: false},
		{url: "", wantMatch: false},
		{url: "about:blank", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rule, ok := r.Resolve(tt.url)
			if ok != tt.wantMatch {
				t.Fatalf("Resolve(%q) matched = %v, want %v", tt.url, ok, tt.wantMatch)
			}
			if ok && rule.Domain != tt.wantDomain {
				t.Errorf("Resolve(%q) domain = %q, want %q", tt.url, rule.Domain, tt.wantDomain)
			}
		})
	}
}

func TestResolverResolveMostSpecificSuffix(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	for _, d := range []string{"example.com", "app.example.com", "b.app.example.com"} {
		if err := r.Add(ctx, d, ActionNeverClose, 0); err != nil {
			t.Fatalf("Add(%q) error = %v", d, err)
		}
	}

	// Repeat enough times that map iteration order cannot hide a
	// first-match-wins regression.
	for i := 0; i < 50; i++ {
		rule, ok := r.Resolve("https://x.b.app.example.com/path")
		if !ok || rule.Domain != "b.app.example.com" {
			t.Fatalf("Resolve() = %q (ok=%v) on run %d, want b.app.example.com", rule.Domain, ok, i)
		}
	}
}

func TestResolverDecide(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if err := r.Add(ctx, "keep.org", ActionNeverClose, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, "kill.org", ActionAlwaysClose, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, "slow.org", ActionCustomTimeout, 30*time.Minute); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		url  string
		want domain.Decision
	}{
		{"https://keep.org/", domain.Decision{ShouldProcess: false}},
		{"https://kill.org/", domain.Decision{ShouldProcess: true, Immediate: true}},
		{"https://slow.org/", domain.Decision{ShouldProcess: true, HasTimeout: true, Timeout: 30 * time.Minute}},
		{"https://unruled.org/", domain.DefaultDecision()},
	}

	for _, tt := range tests {
		got := r.Decide(domain.TabSnapshot{ID: 1, URL: tt.url})
		if got != tt.want {
			t.Errorf("Decide(%s) = %+v, want %+v", tt.url, got, tt.want)
		}
	}
}

func TestResolverLoadDropsMalformed(t *testing.T) {
	store := newMemStore()
	store.saved["good.org"] = Rule{Domain: "good.org", Action: ActionNeverClose}
	store.saved["bad.org"] = Rule{Domain: "bad.org", Action: ActionCustomTimeout} // missing timeout

	r := NewResolver(store, logger.New("error", false))
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var domains []string
	for _, rule := range r.All() {
		domains = append(domains, rule.Domain)
	}
	sort.Strings(domains)
	if diff := cmp.Diff([]string{"good.org"}, domains); diff != "" {
		t.Errorf("loaded rules mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverSeedSkipsCollisions(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	if err := r.Add(ctx, "example.com", ActionNeverClose, 0); err != nil {
		t.Fatal(err)
	}

	r.Seed(ctx, []Rule{
		{Domain: "example.com", Action: ActionAlwaysClose}, // collides, stored rule wins
		{Domain: "fresh.org", Action: ActionNeverClose},
	})

	rule, ok := r.Resolve("https://example.com/")
	if !ok || rule.Action != ActionNeverClose {
		t.Errorf("stored rule was overridden by seed: %+v", rule)
	}
	if _, ok := r.Resolve("https://fresh.org/"); !ok {
		t.Error("seed rule for new domain was not added")
	}
}
