package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/indemnizatii/internal/model"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		reasons   []string
		wantLabel model.Label
		wantConf  float64
		wantWhy   string
	}{
		{"high score", 6, nil, model.LabelLikelyError, 0.75, RationaleLikelyError},
		{"negative reason forces error", 0.5, []string{"variabila_negative"}, model.LabelLikelyError, 0.75, RationaleLikelyError},
		{"moderate score", 3, nil, model.LabelNeedsReview, 0.6, RationaleNeedsReview},
		{"just below moderate", 2.99, nil, model.LabelOK, 0.55, RationaleOK},
		{"z tag alone is weak", 2, []string{"zscore_high_vs_company_year(z=4.1)"}, model.LabelOK, 0.55, RationaleOK},
		{"zero score", 0, []string{}, model.LabelOK, 0.55, RationaleOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, why := Decide(tt.score, tt.reasons)
			assert.Equal(t, tt.wantLabel, label)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
			assert.Equal(t, tt.wantWhy, why)
		})
	}
}

func TestOfflineClassifier_IsDeterministic(t *testing.T) {
	c := NewOfflineClassifier()
	req := NewRequest(sampleRecord())

	first, err := c.Classify(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, model.LabelNeedsReview, first.Label)
	assert.Equal(t, model.ReviewerOffline, first.ReviewerType)
	assert.Equal(t, OfflineModel, first.Model)
	assert.Equal(t, Fingerprint(req), first.PromptFingerprint)
	assert.Nil(t, first.RawResponse)
}

func TestOfflineClassifier_Identity(t *testing.T) {
	c := NewOfflineClassifier()
	assert.Equal(t, model.ReviewerOffline, c.ReviewerType())
	assert.Equal(t, "offline-heuristic", c.Model())
}
