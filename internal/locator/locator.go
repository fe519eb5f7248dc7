// Package locator parses connection strings of the form
// scheme://host[:port][?database=...&schema=...].
package locator

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"ruddy/internal/domain"
)

// DefaultPort is used when the locator carries no explicit port.
const DefaultPort = 1881

// Locator is a parsed connection string.
type Locator struct {
	raw    string
	Scheme string
	Host   string
	Port   int
	query  url.Values
}

// Parse parses a raw locator string. The scheme and host are required.
func Parse(raw string) (Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("parse locator %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return Locator{}, fmt.Errorf("locator %q: missing scheme", raw)
	}
	if u.Hostname() == "" {
		return Locator{}, fmt.Errorf("locator %q: missing host", raw)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 0 || port > 65535 {
			return Locator{}, fmt.Errorf("locator %q: invalid port %q", raw, p)
		}
	}

	return Locator{
		raw:    raw,
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   port,
		query:  u.Query(),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) Locator {
	l, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return l
}

// Location returns the network location, scheme://host:port.
func (l Locator) Location() string {
	return l.Scheme + "://" + l.HostPort()
}

// HostPort returns host:port suitable for net.Listen and grpc dialing.
func (l Locator) HostPort() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// Database returns the database query parameter, or "" when absent.
func (l Locator) Database() string {
	return l.query.Get("database")
}

// Schema returns the schema query parameter, or "" when absent.
func (l Locator) Schema() string {
	return l.query.Get("schema")
}

// Defaults returns the database and schema parameters as connection
// defaults. Absent parameters stay empty.
func (l Locator) Defaults() domain.ConnectionDefaults {
	return domain.ConnectionDefaults{Database: l.Database(), Schema: l.Schema()}
}

// Query returns an arbitrary query parameter.
func (l Locator) Query(param string) string {
	return l.query.Get(param)
}

// Raw returns the string the locator was parsed from.
func (l Locator) Raw() string {
	return l.raw
}

// String renders the locator with its query string, if any.
func (l Locator) String() string {
	if len(l.query) == 0 {
		return l.Location()
	}
	return l.Location() + "?" + l.query.Encode()
}
