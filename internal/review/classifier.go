package review

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/model"
	"github.com/sells-group/indemnizatii/internal/resilience"
	"github.com/sells-group/indemnizatii/pkg/anthropic"
)

// Classifier labels one flagged record.
type Classifier interface {
	Classify(ctx context.Context, req Request) (model.ReviewDecision, error)
	ReviewerType() model.ReviewerType
	Model() string
}

// NewClassifier selects the classifier for a run. Without an API key the
// offline classifier is used. A key without a model name is a configuration
// error. client may be nil, in which case an SDK-backed client is created
// from the key.
func NewClassifier(cfg config.AnthropicConfig, client anthropic.Client, retry resilience.RetryConfig) (Classifier, error) {
	log := zap.L().With(zap.String("component", "review"))

	if strings.TrimSpace(cfg.Key) == "" {
		log.Info("review: using offline classifier", zap.String("model", OfflineModel))
		return NewOfflineClassifier(), nil
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, eris.New("review: anthropic.key is set but anthropic.model is empty")
	}

	if client == nil {
		client = anthropic.NewClient(cfg.Key)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	log.Info("review: using remote classifier",
		zap.String("model", cfg.Model),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond),
	)
	return NewRemoteClassifier(client, cfg.Model, maxTokens, cfg.RequestsPerSecond, retry), nil
}

// ClassifyAll classifies records one at a time and returns the decisions in
// input order. The first failure aborts the run.
func ClassifyAll(ctx context.Context, c Classifier, records []model.ScoredRecord) ([]model.ReviewDecision, error) {
	out := make([]model.ReviewDecision, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "review: classify all")
		}
		d, err := c.Classify(ctx, NewRequest(r))
		if err != nil {
			return out, eris.Wrapf(err, "review: record %s", r.RecordPK)
		}
		out = append(out, d)
	}

	counts := make(map[model.Label]int, 3)
	for _, d := range out {
		counts[d.Label]++
	}
	zap.L().Info("review: classified records",
		zap.Int("total", len(out)),
		zap.Int("likely_error", counts[model.LabelLikelyError]),
		zap.Int("needs_review", counts[model.LabelNeedsReview]),
		zap.Int("ok", counts[model.LabelOK]),
		zap.String("reviewer", string(c.ReviewerType())),
	)
	return out, nil
}
