package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCuesAt_PhaseMarks(t *testing.T) {
	assert.Contains(t, CuesAt(900), CuePhase1)  // 900s elapsed
	assert.Contains(t, CuesAt(600), CuePhase2)  // 1200s elapsed
	assert.Contains(t, CuesAt(300), CuePhase3)  // 1500s elapsed
	assert.Contains(t, CuesAt(0), CuePhase4)    // 1800s elapsed
	assert.NotContains(t, CuesAt(901), CuePhase1)
}

func TestCuesAt_MinuteAlerts(t *testing.T) {
	for _, min := range []int{15, 10, 5, 2, 1} {
		assert.Contains(t, CuesAt(min*60), CueMinuteAlert, "minute %d", min)
	}
	assert.NotContains(t, CuesAt(14*60), CueMinuteAlert)
	assert.NotContains(t, CuesAt(15*60+1), CueMinuteAlert)
	assert.NotContains(t, CuesAt(3*60), CueMinuteAlert)
}

func TestCuesAt_FinalCountdownBeeps(t *testing.T) {
	for s := 1; s <= 10; s++ {
		assert.Contains(t, CuesAt(s), CueBeep, "second %d", s)
	}
	assert.NotContains(t, CuesAt(11), CueBeep)
	assert.NotContains(t, CuesAt(0), CueBeep)
}

func TestCuesAt_MatchEnd(t *testing.T) {
	cues := CuesAt(0)
	assert.Contains(t, cues, CueMatchEnd)
	assert.Contains(t, cues, CuePhase4)
}

func TestCuesAt_QuietMidMatch(t *testing.T) {
	assert.Empty(t, CuesAt(1234))
	assert.Empty(t, CuesAt(1799))
}

func TestCuesAt_OutOfDomain(t *testing.T) {
	assert.Nil(t, CuesAt(-1))
	assert.Nil(t, CuesAt(1801))
}

func TestCuesAt_OverlapAtFifteenMinutes(t *testing.T) {
	// 900s remaining is both the first phase mark and the 15-minute alert.
	cues := CuesAt(900)
	assert.Equal(t, []Cue{CuePhase1, CueMinuteAlert}, cues)
}
