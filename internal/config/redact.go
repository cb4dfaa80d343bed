package config

import "github.com/openkcm/common-sdk/pkg/commoncfg"

const redactedValue = "<redacted>"

// Redacted returns a copy of the configuration with embedded secret values
// replaced, suitable for printing.
func (c Config) Redacted() Config {
	c.IdentityProvider.ClientSecret = redact(c.IdentityProvider.ClientSecret)
	c.Session.Secret = redact(c.Session.Secret)
	c.ValKey.User = redact(c.ValKey.User)
	c.ValKey.Password = redact(c.ValKey.Password)

	return c
}

func redact(ref commoncfg.SourceRef) commoncfg.SourceRef {
	if ref.Value != "" {
		ref.Value = redactedValue
	}

	return ref
}
