// Package resolver validates tracker URLs against SSRF: scheme must be
// http/https, and the hostname must resolve entirely to globally-routable
// addresses. Grounded on the SSRF guard in netresearch-ofelia's
// middlewares/webhook_security.go, adapted to lean on net.IP's own
// classification methods instead of hand-rolled prefix and suffix lists.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/secutils-dev/scheduler/internal/apperrors"
)

// Lookup resolves a hostname to its IP addresses. Defined as an interface
// so tests can substitute deterministic results instead of hitting DNS.
type Lookup func(ctx context.Context, host string) ([]net.IP, error)

// DefaultLookup resolves via the standard library's default resolver.
func DefaultLookup(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// Validator checks tracker URLs for scheme and destination safety.
type Validator struct {
	lookup Lookup
}

func New(lookup Lookup) *Validator {
	if lookup == nil {
		lookup = DefaultLookup
	}
	return &Validator{lookup: lookup}
}

// ValidateURL parses rawURL, enforces an http/https scheme, and resolves
// the hostname, rejecting it unless every resolved address is
// globally routable.
func (v *Validator) ValidateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.Wrap(apperrors.KindClientValidation, "invalid tracker URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.New(apperrors.KindClientValidation, "tracker URL scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return apperrors.New(apperrors.KindClientValidation, "tracker URL must have a host")
	}

	// A literal IP has no DNS to resolve; validate it directly.
	if ip := net.ParseIP(host); ip != nil {
		if !isGloballyRoutable(ip) {
			return apperrors.New(apperrors.KindClientValidation, fmt.Sprintf("tracker URL host %q is not globally routable", host))
		}
		return nil
	}

	ips, err := v.lookup(ctx, host)
	if err != nil {
		return apperrors.Wrap(apperrors.KindClientValidation, "tracker URL host does not resolve", err)
	}
	if len(ips) == 0 {
		return apperrors.New(apperrors.KindClientValidation, "tracker URL host did not resolve to any address")
	}
	for _, ip := range ips {
		if !isGloballyRoutable(ip) {
			return apperrors.New(apperrors.KindClientValidation, fmt.Sprintf("tracker URL host %q resolves to a non-routable address %s", host, ip))
		}
	}
	return nil
}

func isGloballyRoutable(ip net.IP) bool {
	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsUnspecified(),
		ip.IsMulticast(),
		ip.IsInterfaceLocalMulticast():
		return false
	default:
		return true
	}
}
