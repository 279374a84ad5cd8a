// Package perimeter decides whether an inbound connection originates from a
// trusted hop in the mesh. It looks only at connection metadata and knows
// nothing about user identity.
package perimeter

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrDenied is returned by Check for a request from an untrusted hop.
var ErrDenied = errors.New("perimeter: untrusted origin")

// Endpoint is a trusted (host, port) pair.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid trusted endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid trusted endpoint %q: bad port", s)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid trusted endpoint %q: empty host", s)
	}
	return Endpoint{Host: strings.ToLower(host), Port: port}, nil
}

// ParseEndpoints parses a list of "host:port" values, skipping blanks.
func ParseEndpoints(values []string) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		e, err := ParseEndpoint(v)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Request is the connection metadata the guard inspects.
type Request struct {
	ServerName    string
	ServerPort    int
	ForwardedHost string // X-Forwarded-Host, may carry ":port"
	ForwardedPort string // X-Forwarded-Port
	RemoteAddr    string // "ip" or "ip:port"
}

// Guard is an immutable allow-list of trusted hops.
type Guard struct {
	trusted       map[Endpoint]struct{}
	trustLoopback bool
}

// New builds a Guard. When trustLoopback is set, a connection whose remote
// address is a loopback IP is accepted regardless of host and port.
func New(trusted []Endpoint, trustLoopback bool) *Guard {
	set := make(map[Endpoint]struct{}, len(trusted))
	for _, e := range trusted {
		set[Endpoint{Host: strings.ToLower(e.Host), Port: e.Port}] = struct{}{}
	}
	return &Guard{trusted: set, trustLoopback: trustLoopback}
}

// Allow reports whether the request comes from a trusted hop.
//
// A request is trusted when any of these hold:
//   - (ServerName, ServerPort) is on the allow-list;
//   - X-Forwarded-Host is "host:port" and that pair is on the allow-list;
//   - X-Forwarded-Host is a bare host and, together with X-Forwarded-Port,
//     forms a pair on the allow-list;
//   - loopback trust is enabled and RemoteAddr is a loopback IP.
func (g *Guard) Allow(r Request) bool {
	if g.has(r.ServerName, r.ServerPort) {
		return true
	}

	if fh := strings.TrimSpace(firstValue(r.ForwardedHost)); fh != "" {
		if host, port, err := net.SplitHostPort(fh); err == nil {
			if p, err := strconv.Atoi(port); err == nil && g.has(host, p) {
				return true
			}
		} else if fp := strings.TrimSpace(firstValue(r.ForwardedPort)); fp != "" {
			if p, err := strconv.Atoi(fp); err == nil && g.has(fh, p) {
				return true
			}
		}
	}

	if g.trustLoopback && isLoopback(r.RemoteAddr) {
		return true
	}
	return false
}

// Check is Allow in error form.
func (g *Guard) Check(r Request) error {
	if !g.Allow(r) {
		return fmt.Errorf("%w: server=%s:%d forwarded=%q remote=%s", ErrDenied, r.ServerName, r.ServerPort, r.ForwardedHost, r.RemoteAddr)
	}
	return nil
}

func (g *Guard) has(host string, port int) bool {
	if host == "" || port <= 0 {
		return false
	}
	_, ok := g.trusted[Endpoint{Host: strings.ToLower(host), Port: port}]
	return ok
}

// firstValue returns the left-most entry of a comma separated header value,
// i.e. the hop closest to the original client.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return v[:i]
	}
	return v
}

func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
