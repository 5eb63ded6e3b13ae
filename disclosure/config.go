package disclosure

import (
	"bytes"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const defaultHTTPSPort = 443

// SessionRequest is what a caller submits to start one disclosure session.
// Zero-valued fields fall back to the service Defaults.
type SessionRequest struct {
	ServerURI       string   `json:"server_uri"`
	VerifierAddress string   `json:"verifier_address,omitempty"`
	Headers         []string `json:"headers,omitempty"`
	MaxSentData     int      `json:"max_sent_data,omitempty"`
	MaxRecvData     int      `json:"max_recv_data,omitempty"`
	Policy          *Policy  `json:"policy,omitempty"`
}

// Defaults fill in what a SessionRequest leaves out
type Defaults struct {
	VerifierAddress string
	MaxSentData     int
	MaxRecvData     int
}

// DefaultSettings returns the built-in defaults
func DefaultSettings() Defaults {
	return Defaults{
		VerifierAddress: "127.0.0.1:8079",
		MaxSentData:     4096,
		MaxRecvData:     16384,
	}
}

// HeaderLine is one request header
type HeaderLine struct {
	Name  string
	Value string
}

// SessionConfig is a validated SessionRequest
type SessionConfig struct {
	ServerURI       *url.URL
	Host            string
	Port            int
	DefaultPort     bool // no port in the URI, defaultHTTPSPort was used
	Target          string
	Headers         []HeaderLine
	VerifierAddress string
	MaxSentData     int
	MaxRecvData     int
	Policy          Policy
}

// NewSessionConfig validates req and applies defaults. Every failure is a
// configuration *Error.
func NewSessionConfig(req SessionRequest, defaults Defaults) (*SessionConfig, error) {
	if req.ServerURI == "" {
		return nil, newConfigError("server URI is required")
	}
	u, err := url.Parse(req.ServerURI)
	if err != nil {
		return nil, newConfigError("invalid server URI %q: %v", req.ServerURI, err)
	}
	if u.Scheme != "https" {
		return nil, newConfigError("invalid scheme %q, only https is supported", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, newConfigError("server URI %q has no host", req.ServerURI)
	}

	cfg := &SessionConfig{
		ServerURI:       u,
		Host:            host,
		Port:            defaultHTTPSPort,
		DefaultPort:     true,
		Target:          u.RequestURI(),
		VerifierAddress: firstNonEmpty(req.VerifierAddress, defaults.VerifierAddress),
		MaxSentData:     firstPositive(req.MaxSentData, defaults.MaxSentData),
		MaxRecvData:     firstPositive(req.MaxRecvData, defaults.MaxRecvData),
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, newConfigError("invalid port %q in server URI", p)
		}
		cfg.Port = port
		cfg.DefaultPort = false
	}

	if _, port, err := net.SplitHostPort(cfg.VerifierAddress); err != nil {
		return nil, newConfigError("invalid verifier address %q: %v", cfg.VerifierAddress, err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return nil, newConfigError("invalid verifier port %q", port)
	}
	if cfg.MaxSentData <= 0 || cfg.MaxRecvData <= 0 {
		return nil, newConfigError("data ceilings must be positive")
	}

	hostValue := host
	if strings.Contains(hostValue, ":") {
		hostValue = "[" + hostValue + "]"
	}
	cfg.Headers = []HeaderLine{
		{Name: "Host", Value: hostValue},
		{Name: "Connection", Value: "close"},
	}
	for _, raw := range req.Headers {
		line, err := parseHeaderLine(raw)
		if err != nil {
			return nil, err
		}
		cfg.setHeader(line)
	}

	cfg.Policy = DefaultPolicy()
	if req.Policy != nil {
		cfg.Policy = *req.Policy
	}
	if err := cfg.Policy.Sent.Validate(); err != nil {
		return nil, newConfigError("sent policy: %v", err)
	}
	if err := cfg.Policy.Received.Validate(); err != nil {
		return nil, newConfigError("received policy: %v", err)
	}

	if n := len(cfg.BuildRequest()); n > cfg.MaxSentData {
		return nil, newConfigError("request of %d bytes exceeds the sent data ceiling of %d", n, cfg.MaxSentData)
	}
	return cfg, nil
}

// parseHeaderLine splits "Name: Value"
func parseHeaderLine(raw string) (HeaderLine, error) {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return HeaderLine{}, newConfigError("header %q must be in the format 'Name: Value'", raw)
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldName(name) {
		return HeaderLine{}, newConfigError("invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return HeaderLine{}, newConfigError("invalid value for header %q", name)
	}
	return HeaderLine{Name: name, Value: value}, nil
}

// setHeader replaces every header of the same name, or appends
func (c *SessionConfig) setHeader(line HeaderLine) {
	out := c.Headers[:0]
	replaced := false
	for _, h := range c.Headers {
		if !strings.EqualFold(h.Name, line.Name) {
			out = append(out, h)
			continue
		}
		if !replaced {
			out = append(out, line)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, line)
	}
	c.Headers = out
}

// BuildRequest renders the HTTP/1.1 GET request sent to the server
func (c *SessionConfig) BuildRequest() []byte {
	var b bytes.Buffer
	b.WriteString("GET ")
	b.WriteString(c.Target)
	b.WriteString(" HTTP/1.1\r\n")
	for _, h := range c.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
