package security

import (
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
)

// WebAuthnConfig holds relying-party settings for passkey ceremonies.
type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	Origins       []string `yaml:"origins"`
}

// Default relying party display name when none is configured.
const defaultRPDisplayName = "Verdantbox Admin"

// NewWebAuthn builds a WebAuthn relying party from configuration. When
// no RP ID is configured it is derived from the first parseable origin.
func NewWebAuthn(cfg WebAuthnConfig) (*webauthn.WebAuthn, error) {
	rpName := strings.TrimSpace(cfg.RPDisplayName)
	if rpName == "" {
		rpName = defaultRPDisplayName
	}

	origins := normalizeOrigins(cfg.Origins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	rpID := strings.TrimSpace(cfg.RPID)
	if rpID == "" {
		rpID = deriveRPIDFromOrigins(origins)
	}

	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpName,
		RPOrigins:     origins,
	})
}

// deriveRPIDFromOrigins extracts an RP ID from the configured origins.
func deriveRPIDFromOrigins(origins []string) string {
	for _, origin := range origins {
		if host := originHost(origin); host != "" {
			return host
		}
	}
	return ""
}

// originHost parses an origin string and returns its hostname.
func originHost(origin string) string {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}

// normalizeOrigins trims and filters empty origin entries.
func normalizeOrigins(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
