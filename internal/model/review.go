package model

// Label is the review verdict for a flagged record.
type Label string

const (
	LabelLikelyError Label = "LIKELY_ERROR"
	LabelNeedsReview Label = "NEEDS_REVIEW"
	LabelOK          Label = "OK"
)

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelLikelyError, LabelNeedsReview, LabelOK:
		return true
	default:
		return false
	}
}

// ReviewerType identifies which classifier produced a decision.
type ReviewerType string

const (
	ReviewerOffline ReviewerType = "offline"
	ReviewerRemote  ReviewerType = "remote"
)

// ReviewDecision is the classification of one ScoredRecord.
type ReviewDecision struct {
	Label             Label        `json:"label"`
	Confidence        float64      `json:"confidence"`
	Rationale         string       `json:"rationale"`
	PromptFingerprint string       `json:"prompt_fingerprint"`
	ReviewerType      ReviewerType `json:"reviewer_type"`
	Model             string       `json:"model"`
	RawResponse       []byte       `json:"raw_response,omitempty"`
}
