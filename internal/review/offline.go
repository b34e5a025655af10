package review

import (
	"context"
	"strings"

	"github.com/sells-group/indemnizatii/internal/model"
)

// OfflineModel is the model name recorded for offline decisions.
const OfflineModel = "offline-heuristic"

// Decision thresholds and confidences.
const (
	likelyErrorScore = 6.0
	needsReviewScore = 3.0

	likelyErrorConfidence = 0.75
	needsReviewConfidence = 0.6
	okConfidence          = 0.55
)

// Rationales returned by Decide, one per label.
const (
	RationaleLikelyError = "High anomaly score / strong rule trigger"
	RationaleNeedsReview = "Moderate anomaly"
	RationaleOK          = "Weak signal; probably legitimate variation."
)

// Decide maps a score and its reasons to a label, confidence and rationale.
// Any reason mentioning "negative" forces LIKELY_ERROR.
func Decide(score float64, reasons []string) (model.Label, float64, string) {
	if score >= likelyErrorScore || hasNegative(reasons) {
		return model.LabelLikelyError, likelyErrorConfidence, RationaleLikelyError
	}
	if score >= needsReviewScore {
		return model.LabelNeedsReview, needsReviewConfidence, RationaleNeedsReview
	}
	return model.LabelOK, okConfidence, RationaleOK
}

func hasNegative(reasons []string) bool {
	for _, r := range reasons {
		if strings.Contains(r, "negative") {
			return true
		}
	}
	return false
}

// OfflineClassifier applies Decide locally. It never fails.
type OfflineClassifier struct{}

// NewOfflineClassifier returns the deterministic classifier.
func NewOfflineClassifier() *OfflineClassifier { return &OfflineClassifier{} }

// Classify implements Classifier.
func (OfflineClassifier) Classify(_ context.Context, req Request) (model.ReviewDecision, error) {
	label, conf, rationale := Decide(req.AnomalyScore, req.AnomalyReasons)
	return model.ReviewDecision{
		Label:             label,
		Confidence:        conf,
		Rationale:         rationale,
		PromptFingerprint: Fingerprint(req),
		ReviewerType:      model.ReviewerOffline,
		Model:             OfflineModel,
	}, nil
}

// ReviewerType implements Classifier.
func (OfflineClassifier) ReviewerType() model.ReviewerType { return model.ReviewerOffline }

// Model implements Classifier.
func (OfflineClassifier) Model() string { return OfflineModel }
