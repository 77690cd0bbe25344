package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/edgeshim/edgeshim/internal/hooks"
)

// Validate runs the semantic checks that keep an illegal config from
// starting the host.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is empty")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "must be within 1-65535")
	}
	if g.MetricsPort < 0 || g.MetricsPort > 65535 {
		return newFieldError("Global.MetricsPort", "must be within 0-65535")
	}
	if g.MetricsPort != 0 && g.MetricsPort == g.ListenPort {
		return newFieldError("Global.MetricsPort", "must differ from ListenPort")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "must be greater than 0")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}

	seen := map[string]struct{}{}
	for i := range c.Plugins {
		p := &c.Plugins[i]
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return newFieldError("Plugins[].Name", "must not be empty")
		}
		if _, dup := seen[name]; dup {
			return newFieldError(pluginField(name, "Name"), "duplicated")
		}
		seen[name] = struct{}{}

		if !hooks.Registered(name) {
			return newFieldError(pluginField(name, "Name"), "plugin is not registered")
		}
		p.Name = name
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("upstream address required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https supported, got: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("upstream is missing a host: %s", raw)
	}
	return nil
}
