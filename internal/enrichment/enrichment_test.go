package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
)

func TestCompanyDomainFromEmail(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"jane@acme.com", "acme.com"},
		{"Jane@ACME.COM", "acme.com"},
		{"  jane@acme.com  ", "acme.com"},
		{"jane@gmail.com", ""},
		{"jane@protonmail.com", ""},
		{"not-an-email", ""},
		{"@acme.com", ""},
		{"jane@", ""},
		{"jane@localhost", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompanyDomainFromEmail(tc.email), "email %q", tc.email)
	}
}

func TestResolveUsesCacheBeforeLookups(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cache := NewLocalCache(time.Hour, clk)
	cache.Put(context.Background(), "acme.com", &CompanyInfo{Name: "ACME", Domain: "acme.com"})

	calls := 0
	lookup := func(context.Context, string) (*CompanyInfo, error) {
		calls++
		return nil, errors.New("should not be called")
	}

	r := NewResolver(cache, []Lookup{lookup}, time.Second, zap.NewNop())
	info := r.Resolve(context.Background(), "ACME.com")
	require.NotNil(t, info)
	assert.Equal(t, "ACME", info.Name)
	assert.Zero(t, calls)
}

func TestResolveTriesLookupsInOrder(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cache := NewLocalCache(time.Hour, clk)

	failing := func(context.Context, string) (*CompanyInfo, error) {
		return nil, errors.New("upstream down")
	}
	empty := func(context.Context, string) (*CompanyInfo, error) {
		return nil, nil
	}
	hit := func(_ context.Context, domain string) (*CompanyInfo, error) {
		return &CompanyInfo{Name: "ACME"}, nil
	}

	r := NewResolver(cache, []Lookup{failing, empty, hit}, time.Second, zap.NewNop())

	info := r.Resolve(context.Background(), "acme.com")
	require.NotNil(t, info)
	assert.Equal(t, "ACME", info.Name)
	assert.Equal(t, "acme.com", info.Domain)

	// The successful result is now cached.
	cached, ok := cache.Get(context.Background(), "acme.com")
	require.True(t, ok)
	assert.Equal(t, "ACME", cached.Name)
}

func TestResolveReturnsNilWhenNothingFound(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	r := NewResolver(NewLocalCache(time.Hour, clk), nil, time.Second, zap.NewNop())

	assert.Nil(t, r.Resolve(context.Background(), "acme.com"))
	assert.Nil(t, r.Resolve(context.Background(), ""))
}

func TestLocalCacheExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cache := NewLocalCache(time.Hour, clk)
	cache.Put(context.Background(), "acme.com", &CompanyInfo{Name: "ACME"})

	_, ok := cache.Get(context.Background(), "acme.com")
	assert.True(t, ok)

	clk.Advance(2 * time.Hour)
	_, ok = cache.Get(context.Background(), "acme.com")
	assert.False(t, ok)
}
