// Package safehttp provides HTTP clients for calling user-configured
// endpoints such as webhook hooks.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// dialTimeout bounds connection setup independently of the client timeout.
const dialTimeout = 5 * time.Second

// SafeTransport rejects connections to private, loopback or link-local
// addresses to reduce SSRF risk.
var SafeTransport = &http.Transport{
	DialContext: dialPublic,
}

// NewClient returns a client over SafeTransport with the given timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: SafeTransport, Timeout: timeout}
}

func dialPublic(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	if err := checkPublic(host); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// checkPublic fails for anything that is not a routable public address.
func checkPublic(host string) error {
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("unparseable remote IP %q", host)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("access to private IP %s is denied", ip)
	}
	return nil
}
