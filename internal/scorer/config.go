// Package scorer implements peer-group anomaly scoring of compensation facts.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indemnizatii/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with the standard
// thresholds.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		MinScore:         3.0,
		Limit:            500,
		ImplausibleTotal: 2_000_000,
		ZScoreHigh:       4.0,
		ZScoreModerate:   3.0,
	}
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	if c.MinScore < 0 {
		errs = append(errs, "min_score must be >= 0")
	}
	if c.Limit < 0 {
		errs = append(errs, "limit must be >= 0")
	}
	if c.ImplausibleTotal <= 0 {
		errs = append(errs, "implausible_total must be > 0")
	}
	if c.ZScoreModerate <= 0 {
		errs = append(errs, "zscore_moderate must be > 0")
	}
	if c.ZScoreHigh < c.ZScoreModerate {
		errs = append(errs, fmt.Sprintf("zscore_high (%.1f) must be >= zscore_moderate (%.1f)", c.ZScoreHigh, c.ZScoreModerate))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a SHA-256 hash of the scoring config for reproducibility.
func ConfigHash(cfg interface{}) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
