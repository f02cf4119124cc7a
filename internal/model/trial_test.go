package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus_CaseInsensitive(t *testing.T) {
	assert.Equal(t, StatusCompleted, ParseStatus("completed"))
	assert.Equal(t, StatusCompleted, ParseStatus(" Completed "))
	assert.Equal(t, StatusActiveNotRecruiting, ParseStatus("active_not_recruiting"))
}

func TestParseStatus_UnknownFallback(t *testing.T) {
	assert.Equal(t, StatusUnknown, ParseStatus(""))
	assert.Equal(t, StatusUnknown, ParseStatus("SOMETHING_ELSE"))
}

func TestStatus_Buckets(t *testing.T) {
	assert.True(t, StatusRecruiting.IsOngoing())
	assert.True(t, StatusEnrollingByInvite.IsOngoing())
	assert.False(t, StatusSuspended.IsOngoing())
	assert.False(t, StatusSuspended.IsConcluded())
	assert.True(t, StatusWithdrawn.IsConcluded())
	assert.False(t, StatusUnknown.IsConcluded())
}

func TestPhaseRank_CombinedBeforeSingle(t *testing.T) {
	r, ok := PhaseRank("Phase 1/Phase 2")
	assert.True(t, ok)
	assert.Equal(t, 1.5, r)

	r, ok = PhaseRank("Phase 3")
	assert.True(t, ok)
	assert.Equal(t, 3.0, r)

	r, ok = PhaseRank("Early Phase 1")
	assert.True(t, ok)
	assert.Equal(t, 0.5, r)
}

func TestPhaseRank_Unrecognized(t *testing.T) {
	_, ok := PhaseRank("")
	assert.False(t, ok)
	_, ok = PhaseRank("NA")
	assert.False(t, ok)
}

func TestSiteCounters_Concluded(t *testing.T) {
	c := SiteCounters{Completed: 2, Terminated: 1, Withdrawn: 1, Ongoing: 3}
	assert.Equal(t, 4, c.Concluded())
}
