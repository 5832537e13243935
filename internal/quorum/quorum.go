// Package quorum computes the vote count required to accept a decision.
package quorum

// Threshold returns ceil(memberCount * 0.6), never less than 1.
// Integer arithmetic keeps exact multiples of five from drifting upward.
func Threshold(memberCount int) int {
	if memberCount <= 1 {
		return 1
	}
	return (memberCount*3 + 4) / 5
}

// Reached reports whether votes meets the threshold for memberCount
func Reached(votes, memberCount int) bool {
	return votes >= Threshold(memberCount)
}
