package engine

// scoreSequence is the ascending run of point values a player cell steps
// through. 5 wraps back to 0, the resting "no score" state.
var scoreSequence = []int{1, 2, 3, 5}

// NextScore returns the score value following v in the fixed cycle
// 0 -> 1 -> 2 -> 3 -> 5 -> 0. Any value outside the sequence restarts it.
func NextScore(v int) int {
	if v == 5 {
		return 0
	}
	for i, s := range scoreSequence {
		if s == v && i+1 < len(scoreSequence) {
			return scoreSequence[i+1]
		}
	}
	return scoreSequence[0]
}
