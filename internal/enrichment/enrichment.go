package enrichment

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CompanyInfo is brand/company context attached to an event before
// formatting. All fields are best-effort.
type CompanyInfo struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	LogoURL     string `json:"logo_url"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
	YearFounded int    `json:"year_founded"`
}

// Lookup fetches company info for a domain from an external capability.
type Lookup func(ctx context.Context, domain string) (*CompanyInfo, error)

// Resolver consults the cache first and then each lookup in priority order.
// Resolution is strictly best-effort; formatting must work without it.
type Resolver struct {
	cache   Cache
	lookups []Lookup
	timeout time.Duration
	log     *zap.Logger
}

func NewResolver(cache Cache, lookups []Lookup, timeout time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		cache:   cache,
		lookups: lookups,
		timeout: timeout,
		log:     log.Named("enrichment"),
	}
}

// Resolve returns company info for a domain, or nil when nothing could be
// found. Lookup failures are logged and swallowed.
func (r *Resolver) Resolve(ctx context.Context, domain string) *CompanyInfo {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if r == nil || domain == "" {
		return nil
	}

	if r.cache != nil {
		if info, ok := r.cache.Get(ctx, domain); ok {
			return info
		}
	}

	for _, lookup := range r.lookups {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		info, err := lookup(lookupCtx, domain)
		cancel()
		if err != nil {
			r.log.Warn("enrichment lookup failed",
				zap.String("domain", domain),
				zap.Error(err))
			continue
		}
		if info == nil {
			continue
		}
		info.Domain = domain
		if r.cache != nil {
			r.cache.Put(ctx, domain, info)
		}
		return info
	}
	return nil
}

// Domains that identify a person rather than a company; enriching them
// would return whoever owns the mail provider.
var freeMailDomains = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {},
	"icloud.com": {}, "aol.com": {}, "proton.me": {}, "protonmail.com": {},
	"live.com": {}, "msn.com": {}, "mail.ru": {}, "yandex.ru": {},
}

// CompanyDomainFromEmail extracts an enrichable company domain from a
// customer email. Free-mail providers and malformed addresses yield "".
func CompanyDomainFromEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") {
		return ""
	}
	if _, ok := freeMailDomains[domain]; ok {
		return ""
	}
	return domain
}
