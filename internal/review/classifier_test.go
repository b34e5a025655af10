package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/model"
)

func TestNewClassifier_Selection(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AnthropicConfig
		wantType  model.ReviewerType
		wantModel string
		wantErr   bool
	}{
		{"no key selects offline", config.AnthropicConfig{}, model.ReviewerOffline, OfflineModel, false},
		{"blank key selects offline", config.AnthropicConfig{Key: "  ", Model: "claude-x"}, model.ReviewerOffline, OfflineModel, false},
		{"key and model select remote", config.AnthropicConfig{Key: "sk-test", Model: "claude-x"}, model.ReviewerRemote, "claude-x", false},
		{"key without model is fatal", config.AnthropicConfig{Key: "sk-test"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClassifier(tt.cfg, new(mockClient), fastRetry())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "anthropic.model")
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, c.ReviewerType())
			assert.Equal(t, tt.wantModel, c.Model())
		})
	}
}

func TestNewClassifier_BuildsSDKClientWhenNil(t *testing.T) {
	c, err := NewClassifier(config.AnthropicConfig{Key: "sk-test", Model: "claude-x"}, nil, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, model.ReviewerRemote, c.ReviewerType())
}

func TestClassifyAll_PreservesOrder(t *testing.T) {
	records := []model.ScoredRecord{
		{FactRow: model.FactRow{RecordPK: "a"}, AnomalyScore: 7},
		{FactRow: model.FactRow{RecordPK: "b"}, AnomalyScore: 3},
		{FactRow: model.FactRow{RecordPK: "c"}, AnomalyScore: 1},
	}

	got, err := ClassifyAll(context.Background(), NewOfflineClassifier(), records)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.LabelLikelyError, got[0].Label)
	assert.Equal(t, model.LabelNeedsReview, got[1].Label)
	assert.Equal(t, model.LabelOK, got[2].Label)
}

func TestClassifyAll_StopsOnFirstFailure(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"label":"OK","confidence":0.9,"rationale":"fine"}`), nil).Once()
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`not json`), nil).Once()

	c := NewRemoteClassifier(mc, "m", 128, 0, fastRetry())
	records := []model.ScoredRecord{
		{FactRow: model.FactRow{RecordPK: "a"}},
		{FactRow: model.FactRow{RecordPK: "b"}},
		{FactRow: model.FactRow{RecordPK: "c"}},
	}

	got, err := ClassifyAll(context.Background(), c, records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record b")
	assert.Len(t, got, 1)
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestClassifyAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ClassifyAll(ctx, NewOfflineClassifier(), []model.ScoredRecord{{FactRow: model.FactRow{RecordPK: "a"}}})
	require.Error(t, err)
}
