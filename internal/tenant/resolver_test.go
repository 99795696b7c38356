package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

type fakeDirectory struct {
	byKey  map[string]string
	byName map[string]string
	err    error
}

func (d fakeDirectory) TenantHandleByKey(_ context.Context, apiKey string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.byKey[apiKey], nil
}

func (d fakeDirectory) TenantHandleByName(_ context.Context, name string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.byName[name], nil
}

type fakeProber struct {
	partitions map[string]bool
	err        error
}

func (p fakeProber) HasPartition(_ context.Context, partition string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.partitions[partition], nil
}

func newTestResolver(dir Directory, log PartitionProber, defaultTenant string) *Resolver {
	return NewResolver(dir, log, defaultTenant, zerolog.Nop())
}

func TestResolvePersistedLinkageShortCircuits(t *testing.T) {
	// A persisted handle wins even when the credential points elsewhere.
	r := newTestResolver(
		fakeDirectory{byKey: map[string]string{"key-1": "Other"}},
		fakeProber{},
		"",
	)
	got := r.Resolve(context.Background(), &models.Session{
		TenantHandle: "Acme Corp",
		APIKey:       "key-1",
	})
	require.Equal(t, Resolution{Partition: "acme_corp", Handle: "Acme Corp"}, got)
}

func TestResolveCredentialLookup(t *testing.T) {
	// The canonical handle survives as-is; only the partition is sanitized.
	r := newTestResolver(
		fakeDirectory{byKey: map[string]string{"key-1": "Acme"}},
		fakeProber{},
		"",
	)
	got := r.Resolve(context.Background(), &models.Session{APIKey: "key-1"})
	require.Equal(t, Resolution{Partition: "acme", Handle: "Acme"}, got)
}

func TestResolveExternalIDMatchesKnownHandle(t *testing.T) {
	r := newTestResolver(
		fakeDirectory{byName: map[string]string{"acme": "Acme"}},
		fakeProber{},
		"",
	)
	got := r.Resolve(context.Background(), &models.Session{ExternalID: "acme"})
	require.Equal(t, Resolution{Partition: "acme", Handle: "Acme"}, got)
}

func TestResolveExternalIDMatchesExistingPartition(t *testing.T) {
	// Not a known handle, but the partition already has traffic. No tenant
	// row backs it, so there is no canonical handle to carry.
	r := newTestResolver(
		fakeDirectory{},
		fakeProber{partitions: map[string]bool{"legacy-shop": true}},
		"",
	)
	got := r.Resolve(context.Background(), &models.Session{ExternalID: "legacy-shop"})
	require.Equal(t, Resolution{Partition: "legacy-shop"}, got)
}

func TestResolveDefaultTenantRequiresNonEmptyPartition(t *testing.T) {
	dir := fakeDirectory{}

	empty := newTestResolver(dir, fakeProber{}, "fallback")
	require.Equal(t, Resolution{Partition: Unknown}, empty.Resolve(context.Background(), &models.Session{}))

	populated := newTestResolver(dir, fakeProber{partitions: map[string]bool{"fallback": true}}, "fallback")
	require.Equal(t, Resolution{Partition: "fallback"}, populated.Resolve(context.Background(), &models.Session{}))
}

func TestResolveFallsBackToUnknown(t *testing.T) {
	r := newTestResolver(fakeDirectory{}, fakeProber{}, "")
	got := r.Resolve(context.Background(), &models.Session{
		APIKey:     "no-such-key",
		ExternalID: "no-such-tenant",
	})
	require.Equal(t, Resolution{Partition: Unknown}, got)
}

func TestResolveLookupErrorsAreStrategyMisses(t *testing.T) {
	// Every backend call fails; the cascade still lands on Unknown instead
	// of surfacing an error.
	boom := errors.New("backend down")
	r := newTestResolver(fakeDirectory{err: boom}, fakeProber{err: boom}, "fallback")
	got := r.Resolve(context.Background(), &models.Session{
		APIKey:     "key-1",
		ExternalID: "acme",
	})
	require.Equal(t, Resolution{Partition: Unknown}, got)
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme", "acme"},
		{"  Acme Corp  ", "acme_corp"},
		{"shop-42_eu", "shop-42_eu"},
		{"weird!chars?", "weird_chars_"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Sanitize(tc.in), "Sanitize(%q)", tc.in)
	}
}
