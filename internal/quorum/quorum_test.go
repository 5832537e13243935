package quorum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold(t *testing.T) {
	tests := []struct {
		members  int
		expected int
	}{
		{members: 0, expected: 1},
		{members: 1, expected: 1},
		{members: 2, expected: 2},
		{members: 3, expected: 2},
		{members: 4, expected: 3},
		{members: 5, expected: 3},
		{members: 6, expected: 4},
		{members: 10, expected: 6},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Threshold(tt.members), "members=%d", tt.members)
	}
}

func TestThreshold_MatchesCeilFormula(t *testing.T) {
	for n := 1; n <= 100; n++ {
		// n*6/10 in exact rational form
		want := int(math.Ceil(float64(n*6) / 10))
		if want < 1 {
			want = 1
		}
		assert.Equal(t, want, Threshold(n), "members=%d", n)
	}
}

func TestReached(t *testing.T) {
	assert.False(t, Reached(1, 3))
	assert.True(t, Reached(2, 3))
	assert.True(t, Reached(1, 1))
	assert.False(t, Reached(2, 4))
	assert.True(t, Reached(3, 4))
}
