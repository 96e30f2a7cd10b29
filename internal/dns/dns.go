// Package dns resolves the relay host, falling back to public resolvers
// when the system resolver is broken or slow.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicServers are raced when the system resolver fails.
var PublicServers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

var errNoAddresses = errors.New("no addresses found")

// Resolver looks a host up with the system resolver first and races
// Servers on failure.
type Resolver struct {
	Servers      []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration
}

// DefaultResolver is used by Lookup and by the signaling client.
var DefaultResolver = &Resolver{
	Servers:      PublicServers,
	LocalTimeout: time.Second,
	RaceTimeout:  2 * time.Second,
}

// Lookup resolves host with DefaultResolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return DefaultResolver.Lookup(ctx, host)
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, orDefault(r.LocalTimeout, time.Second))
	addr, err := lookupWith(localCtx, net.DefaultResolver, host)
	cancel()
	if err == nil {
		return addr, nil
	}
	if ctx.Err() != nil || len(r.Servers) == 0 {
		return "", fmt.Errorf("lookup %s: %w", host, err)
	}
	return r.race(ctx, host)
}

// DialContext resolves the host part of addr with r and dials it. It
// fits websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		addr string
		err  error
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(r.RaceTimeout, 2*time.Second))
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func() {
			addr, err := lookupWith(ctx, viaServer(server), host)
			results <- result{addr: addr, err: err}
		}()
	}

	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.addr, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("lookup %s: public dns race: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("lookup %s: all %d public dns servers failed", host, len(r.Servers))
}

// viaServer returns a resolver that sends every query to server:53.
func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errNoAddresses
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
