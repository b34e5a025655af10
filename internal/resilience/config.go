package resilience

import (
	"time"

	"github.com/sells-group/indemnizatii/internal/config"
)

// FromConfig converts the retry section of the app config to a RetryConfig.
// Unset values keep their defaults.
func FromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelayMs > 0 {
		cfg.InitialBackoff = time.Duration(c.BaseDelayMs) * time.Millisecond
	}
	if c.MaxDelayMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxDelayMs) * time.Millisecond
	}
	return cfg
}
