package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Default configuration values
const (
	DefaultServer = "localhost:8080"
	DefaultTURN   = "" // Optional, empty by default
)

// DefaultSTUNServers is used when neither a flag nor STUN_SERVER names one.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

var ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// Config holds application configuration
type Config struct {
	// Server is the relay's host[:port]
	Server string

	// Secure selects wss/https over ws/http
	Secure bool

	// WebSocketURL and APIURL are constructed from Server
	WebSocketURL string
	APIURL       string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server     string
	Insecure   bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := first(opts.Server, os.Getenv("HUDDLE_SERVER"), os.Getenv("DOMAIN"), DefaultServer)
	server, secure, err := parseServer(server, opts.Insecure)
	if err != nil {
		return nil, err
	}

	stun := DefaultSTUNServers
	if s := first(opts.STUNServer, os.Getenv("STUN_SERVER")); s != "" {
		stun = splitList(s)
	}

	cfg := &Config{
		Server:      server,
		Secure:      secure,
		STUNServers: stun,
		TURNServer:  first(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:    first(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    first(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  opts.ForceRelay || os.Getenv("FORCE_RELAY") == "true",
	}

	wsScheme, httpScheme := "ws", "http"
	if secure {
		wsScheme, httpScheme = "wss", "https"
	}
	cfg.WebSocketURL = fmt.Sprintf("%s://%s/ws", wsScheme, server)
	cfg.APIURL = fmt.Sprintf("%s://%s/api", httpScheme, server)

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, ErrRelayWithoutTURN
	}

	return cfg, nil
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/room/%s", scheme, c.Server, roomID)
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to the usual UDP, TCP and TLS endpoints.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	if strings.ContainsAny(host, ":?") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// parseServer accepts "host", "host:port" or a full URL and reports whether
// TLS should be used. Loopback hosts default to plain ws.
func parseServer(raw string, insecure bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", false, fmt.Errorf("invalid server %q", raw)
		}
		secure := (u.Scheme == "https" || u.Scheme == "wss") && !insecure
		return u.Host, secure, nil
	}

	host := strings.TrimRight(raw, "/")
	if host == "" {
		return "", false, fmt.Errorf("invalid server %q", raw)
	}
	return host, !insecure && !isLoopback(host), nil
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
