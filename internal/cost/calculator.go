// Package cost estimates the spend of remote review runs.
package cost

import "sync"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of the given token counts. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Known reports whether the calculator has pricing for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
	}
}

// Tally accumulates token usage across calls. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	calls  int
	input  int64
	output int64
}

// Add records one call.
func (t *Tally) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.input += input
	t.output += output
}

// Totals returns the number of calls and the summed token counts.
func (t *Tally) Totals() (calls int, input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.input, t.output
}
