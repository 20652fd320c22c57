package config

import "github.com/cuemby/opkit/pkg/opkit"

// Backoff translates DefaultBackoff/DefaultBackoffBase into a BackoffFunc.
func (c Config) Backoff() opkit.BackoffFunc {
	switch c.DefaultBackoff {
	case "constant":
		return opkit.ConstantBackoff(c.DefaultBackoffBase)
	case "none":
		return opkit.NoBackoff
	default:
		return opkit.ExponentialBackoff(c.DefaultBackoffBase)
	}
}

// ClientDefaults builds the opkit.ClientDefaults this config describes.
func (c Config) ClientDefaults() opkit.ClientDefaults {
	return opkit.ClientDefaults{
		MaxRetries: c.DefaultMaxRetries,
		Backoff:    c.Backoff(),
	}
}

// SatisfiedConnectionStatus translates SatisfiedConnection into a ConnStatus.
func (c Config) SatisfiedConnectionStatus() opkit.ConnStatus {
	switch c.SatisfiedConnection {
	case "disconnected":
		return opkit.ConnDisconnected
	case "connected":
		return opkit.ConnConnected
	default:
		return opkit.ConnRequiresConnection
	}
}
