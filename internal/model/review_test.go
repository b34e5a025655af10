package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelValid(t *testing.T) {
	assert.True(t, LabelLikelyError.Valid())
	assert.True(t, LabelNeedsReview.Valid())
	assert.True(t, LabelOK.Valid())
	assert.False(t, Label("ok").Valid())
	assert.False(t, Label("").Valid())
}

func TestReviewerTypeValues(t *testing.T) {
	assert.Equal(t, "offline", string(ReviewerOffline))
	assert.Equal(t, "remote", string(ReviewerRemote))
}

func TestNormalizedCompensation_IsEmpty(t *testing.T) {
	assert.True(t, NormalizedCompensation{}.IsEmpty())
	assert.False(t, NormalizedCompensation{Base: Int64Ptr(0)}.IsEmpty())
	assert.False(t, NormalizedCompensation{Extra: 5}.IsEmpty())
}
