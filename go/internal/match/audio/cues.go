// Package audio derives the timing cues an audio collaborator plays during
// a match. The engine only emits these events; sound synthesis lives with
// the client.
package audio

import "github.com/mcdev12/gateball/go/internal/models"

// Cue identifies a single audio cue.
type Cue string

const (
	// Phase announcements fire at fixed elapsed-time marks.
	CuePhase1 Cue = "phase_1" // 900s elapsed
	CuePhase2 Cue = "phase_2" // 1200s elapsed
	CuePhase3 Cue = "phase_3" // 1500s elapsed
	CuePhase4 Cue = "phase_4" // 1800s elapsed (match end mark)

	// CueMinuteAlert fires at second 0 of the 15th, 10th, 5th, 2nd and 1st
	// minute remaining.
	CueMinuteAlert Cue = "minute_alert"

	// CueBeep fires every second during the final ten seconds.
	CueBeep Cue = "beep"

	// CueMatchEnd fires when the clock reaches zero.
	CueMatchEnd Cue = "match_end"
)

// phaseMarks maps elapsed seconds to the phase announcement due at that mark.
var phaseMarks = map[int]Cue{
	900:  CuePhase1,
	1200: CuePhase2,
	1500: CuePhase3,
	1800: CuePhase4,
}

// alertMinutes are the remaining-minute marks that trigger CueMinuteAlert.
var alertMinutes = map[int]bool{15: true, 10: true, 5: true, 2: true, 1: true}

// CuesAt returns the cues due at the given remaining time, in a stable
// order. timeLeft is seconds remaining out of models.MatchDurationSec.
func CuesAt(timeLeft int) []Cue {
	if timeLeft < 0 || timeLeft > models.MatchDurationSec {
		return nil
	}

	var cues []Cue

	elapsed := models.MatchDurationSec - timeLeft
	if c, ok := phaseMarks[elapsed]; ok {
		cues = append(cues, c)
	}

	if timeLeft%60 == 0 && alertMinutes[timeLeft/60] {
		cues = append(cues, CueMinuteAlert)
	}

	if timeLeft > 0 && timeLeft <= 10 {
		cues = append(cues, CueBeep)
	}

	if timeLeft == 0 {
		cues = append(cues, CueMatchEnd)
	}

	return cues
}
