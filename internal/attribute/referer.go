package attribute

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// HTTPSMode constrains the referer's scheme.
type HTTPSMode int

const (
	// HTTPSAny skips the scheme check.
	HTTPSAny HTTPSMode = iota
	// HTTPSRequired requires an https referer.
	HTTPSRequired
	// HTTPSForbidden requires a plain http referer.
	HTTPSForbidden
	// HTTPSSameAsLocal requires the referer scheme to match the request's.
	HTTPSSameAsLocal
)

// RefererConfig declares the accepted referers. Each dimension (scheme,
// domain, URL, path) is checked only when configured. Within a dimension
// the alternatives are OR-ed; across dimensions they are AND-ed.
//
// The *Var fields name a context variable and the *Config fields a key in
// the policy namespace; both may hold a string or a list of strings that
// is unioned with the literal values. Domain values from these sources
// that start with "." are treated as suffixes, path values ending in "*"
// as prefixes; everything else is compared exactly.
type RefererConfig struct {
	HTTPS HTTPSMode

	Domains        []string
	DomainSuffixes []string
	DomainRegex    []string
	DomainVar      string
	DomainConfig   string

	URLs      []string
	URLRegex  []string
	URLVar    string
	URLConfig string

	Paths        []string
	PathPrefixes []string
	PathSuffixes []string
	PathRegex    []string
	PathVar      string
	PathConfig   string

	Redirect RedirectTarget
}

// Referer checks the Referer header against a RefererConfig.
type Referer struct {
	cfg         RefererConfig
	domainRegex []*regexp.Regexp
	urlRegex    []*regexp.Regexp
	pathRegex   []*regexp.Regexp
}

// NewReferer compiles the configured patterns.
func NewReferer(cfg RefererConfig) (*Referer, error) {
	r := &Referer{cfg: cfg}
	var err error
	if r.domainRegex, err = compileAll(cfg.DomainRegex); err != nil {
		return nil, fmt.Errorf("referer domain regex: %w", err)
	}
	if r.urlRegex, err = compileAll(cfg.URLRegex); err != nil {
		return nil, fmt.Errorf("referer url regex: %w", err)
	}
	if r.pathRegex, err = compileAll(cfg.PathRegex); err != nil {
		return nil, fmt.Errorf("referer path regex: %w", err)
	}
	return r, nil
}

// MustReferer is NewReferer that panics on a bad pattern.
func MustReferer(cfg RefererConfig) *Referer {
	r, err := NewReferer(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Referer) Name() string { return "Referer" }

func (r *Referer) Apply(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	raw := ac.Header("Referer")
	ref, err := url.Parse(raw)
	if raw == "" || err != nil || ref.Host == "" {
		perr := domain.NewPolicyError(domain.ErrNoReferer, r.Name(), "missing or unparseable referer").WithData(raw)
		return fail(ctx, ac, r.Name(), r.cfg.Redirect, KeyRefererRedirect, perr, nil)
	}

	if dim := r.mismatch(ac, ref); dim != "" {
		perr := domain.NewPolicyError(domain.ErrRefererMismatch, r.Name(), dim+" does not match").WithData(raw)
		return fail(ctx, ac, r.Name(), r.cfg.Redirect, KeyRefererRedirect, perr, nil)
	}
	return domain.Continue(), nil
}

// mismatch returns the first configured dimension that fails, or "".
func (r *Referer) mismatch(ac *action.Context, ref *url.URL) string {
	if !r.schemeOK(ac, ref) {
		return "scheme"
	}
	if !r.domainOK(ac, strings.ToLower(ref.Hostname())) {
		return "domain"
	}
	if !r.urlOK(ac, ref.String()) {
		return "url"
	}
	if !r.pathOK(ac, ref.EscapedPath()) {
		return "path"
	}
	return ""
}

func (r *Referer) schemeOK(ac *action.Context, ref *url.URL) bool {
	https := strings.EqualFold(ref.Scheme, "https")
	switch r.cfg.HTTPS {
	case HTTPSRequired:
		return https
	case HTTPSForbidden:
		return !https
	case HTTPSSameAsLocal:
		local := ac.Request() != nil && ac.Request().Secure()
		return https == local
	default:
		return true
	}
}

func (r *Referer) domainOK(ac *action.Context, host string) bool {
	if len(r.cfg.Domains) == 0 && len(r.cfg.DomainSuffixes) == 0 && len(r.domainRegex) == 0 &&
		r.cfg.DomainVar == "" && r.cfg.DomainConfig == "" {
		return true
	}

	exact := union(r.cfg.Domains)
	suffixes := union(r.cfg.DomainSuffixes)
	for _, v := range union(varStrings(ac, r.cfg.DomainVar), configStrings(ac, r.cfg.DomainConfig)) {
		if strings.HasPrefix(v, ".") {
			suffixes = append(suffixes, v)
		} else {
			exact = append(exact, v)
		}
	}

	for _, d := range exact {
		if strings.EqualFold(d, host) {
			return true
		}
	}
	for _, s := range suffixes {
		s = "." + strings.TrimPrefix(strings.ToLower(s), ".")
		if host == s[1:] || strings.HasSuffix(host, s) {
			return true
		}
	}
	return anyMatch(r.domainRegex, host)
}

func (r *Referer) urlOK(ac *action.Context, full string) bool {
	if len(r.cfg.URLs) == 0 && len(r.urlRegex) == 0 && r.cfg.URLVar == "" && r.cfg.URLConfig == "" {
		return true
	}
	exact := union(r.cfg.URLs, varStrings(ac, r.cfg.URLVar), configStrings(ac, r.cfg.URLConfig))
	if contains(exact, full) {
		return true
	}
	return anyMatch(r.urlRegex, full)
}

func (r *Referer) pathOK(ac *action.Context, path string) bool {
	if len(r.cfg.Paths) == 0 && len(r.cfg.PathPrefixes) == 0 && len(r.cfg.PathSuffixes) == 0 &&
		len(r.pathRegex) == 0 && r.cfg.PathVar == "" && r.cfg.PathConfig == "" {
		return true
	}
	if path == "" {
		path = "/"
	}

	exact := union(r.cfg.Paths)
	prefixes := union(r.cfg.PathPrefixes)
	for _, v := range union(varStrings(ac, r.cfg.PathVar), configStrings(ac, r.cfg.PathConfig)) {
		if p, ok := strings.CutSuffix(v, "*"); ok {
			prefixes = append(prefixes, p)
		} else {
			exact = append(exact, v)
		}
	}

	if contains(exact, path) {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, s := range r.cfg.PathSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return anyMatch(r.pathRegex, path)
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func union(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
