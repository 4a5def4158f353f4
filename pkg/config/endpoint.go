package config

import (
	"fmt"
	"net"
)

// ResolvedEndpoint is the connection record produced by endpoint resolution.
type ResolvedEndpoint struct {
	BaseURL string
	APIKey  string
}

// EndpointFor resolves the connection parameters for a model id.
// Precedence: per-model fields → global fields → built-in default
// (http://<ip>:<port>/v1). Empty string means "inherit".
func (c *Config) EndpointFor(model string) ResolvedEndpoint {
	resolved := ResolvedEndpoint{
		BaseURL: c.globalBaseURL(),
		APIKey:  c.Endpoint.APIKey,
	}

	if ref, ok := c.modelRef(model); ok {
		if ref.APIBaseURL != "" {
			resolved.BaseURL = ref.APIBaseURL
		}
		if ref.APIKey != "" {
			resolved.APIKey = ref.APIKey
		}
	}
	return resolved
}

func (c *Config) modelRef(model string) (ModelRef, bool) {
	if c.Models.Chairman.Name == model {
		return c.Models.Chairman, true
	}
	for _, m := range c.Models.CouncilMembers {
		if m.Name == model {
			return m, true
		}
	}
	return ModelRef{}, false
}

func (c *Config) globalBaseURL() string {
	if c.Endpoint.APIBaseURL != "" {
		return c.Endpoint.APIBaseURL
	}
	ip := c.Endpoint.IPAddress
	if ip == "" {
		ip = c.resolvedIP
	}
	if ip == "" {
		ip = "127.0.0.1"
	}
	port := c.Endpoint.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://%s:%d/v1", ip, port)
}

// detectLocalIPv4 returns the primary non-loopback IPv4 of this host, or
// the loopback address if detection fails.
func detectLocalIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
