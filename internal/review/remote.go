package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/indemnizatii/internal/cost"
	"github.com/sells-group/indemnizatii/internal/model"
	"github.com/sells-group/indemnizatii/internal/resilience"
	"github.com/sells-group/indemnizatii/pkg/anthropic"
)

// ErrMalformedResponse marks a remote reply that does not match the response
// contract. Such replies are rejected, never repaired.
var ErrMalformedResponse = errors.New("review: malformed model response")

const systemPrompt = "You classify flagged public compensation records. Reply with a single JSON object only."

// RemoteClassifier delegates classification to an Anthropic model. Calls are
// rate limited and transient failures are retried.
type RemoteClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	usage     cost.Tally
}

// NewRemoteClassifier creates a classifier backed by client. A non-positive
// rps disables throttling.
func NewRemoteClassifier(client anthropic.Client, modelName string, maxTokens int64, rps float64, retry resilience.RetryConfig) *RemoteClassifier {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
	}
	return &RemoteClassifier{
		client:    client,
		model:     modelName,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
	}
}

// Classify implements Classifier.
func (c *RemoteClassifier) Classify(ctx context.Context, req Request) (model.ReviewDecision, error) {
	prompt := BuildPrompt(req)
	temp := 0.0

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "review: rate limiter")
		}
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return model.ReviewDecision{}, eris.Wrapf(err, "review: classify %s", req.RecordPK)
	}
	resp.Usage.LogUsage(c.model, "review")
	c.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	raw := resp.Text()
	label, conf, rationale, err := ParseResponse(raw)
	if err != nil {
		zap.L().Error("review: rejected model response",
			zap.String("record_pk", req.RecordPK),
			zap.String("response", raw),
		)
		return model.ReviewDecision{}, eris.Wrapf(err, "review: classify %s", req.RecordPK)
	}

	return model.ReviewDecision{
		Label:             label,
		Confidence:        conf,
		Rationale:         rationale,
		PromptFingerprint: Fingerprint(req),
		ReviewerType:      model.ReviewerRemote,
		Model:             c.model,
		RawResponse:       []byte(raw),
	}, nil
}

// ReviewerType implements Classifier.
func (c *RemoteClassifier) ReviewerType() model.ReviewerType { return model.ReviewerRemote }

// Model implements Classifier.
func (c *RemoteClassifier) Model() string { return c.model }

// Usage returns the number of answered calls and their token counts.
func (c *RemoteClassifier) Usage() (calls int, input, output int64) {
	return c.usage.Totals()
}

type wireResponse struct {
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
	Rationale  *string  `json:"rationale"`
}

// ParseResponse validates a model reply against the response contract: one
// JSON object holding exactly label, confidence and rationale, a known label,
// confidence within [0, 1] and a non-empty rationale. A single surrounding
// markdown code fence is tolerated; anything else fails with
// ErrMalformedResponse.
func ParseResponse(raw string) (model.Label, float64, string, error) {
	body := stripFence(strings.TrimSpace(raw))

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var w wireResponse
	if err := dec.Decode(&w); err != nil {
		return "", 0, "", eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", 0, "", eris.Wrap(ErrMalformedResponse, "trailing content after object")
	}

	switch {
	case w.Label == nil || w.Confidence == nil || w.Rationale == nil:
		return "", 0, "", eris.Wrap(ErrMalformedResponse, "missing required key")
	case !model.Label(*w.Label).Valid():
		return "", 0, "", eris.Wrapf(ErrMalformedResponse, "unknown label %q", *w.Label)
	case *w.Confidence < 0 || *w.Confidence > 1:
		return "", 0, "", eris.Wrapf(ErrMalformedResponse, "confidence %v outside [0,1]", *w.Confidence)
	case strings.TrimSpace(*w.Rationale) == "":
		return "", 0, "", eris.Wrap(ErrMalformedResponse, "empty rationale")
	}
	return model.Label(*w.Label), *w.Confidence, *w.Rationale, nil
}

// stripFence removes one ```json ... ``` wrapper.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}
