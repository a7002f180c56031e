package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextScore(t *testing.T) {
	cases := map[int]int{
		0: 1,
		1: 2,
		2: 3,
		3: 5,
		5: 0,
	}
	for in, want := range cases {
		assert.Equal(t, want, NextScore(in), "NextScore(%d)", in)
	}
}

func TestNextScore_UnknownValueRestartsCycle(t *testing.T) {
	// Values outside the sequence (e.g. a snapshot written by an older
	// client) restart at the first element rather than panicking.
	assert.Equal(t, 1, NextScore(4))
	assert.Equal(t, 1, NextScore(-1))
	assert.Equal(t, 1, NextScore(99))
}

func TestNextScore_FullCycle(t *testing.T) {
	v := 0
	seen := []int{}
	for i := 0; i < 5; i++ {
		v = NextScore(v)
		seen = append(seen, v)
	}
	assert.Equal(t, []int{1, 2, 3, 5, 0}, seen)
}
