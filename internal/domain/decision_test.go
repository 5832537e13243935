package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVoteSet_SortsAndDedupes(t *testing.T) {
	set := NewVoteSet("carol", "alice", "bob", "alice")
	assert.Equal(t, VoteSet{"alice", "bob", "carol"}, set)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, VoteSet{}, NewVoteSet())
}

func TestVoteSet_Toggle(t *testing.T) {
	tests := []struct {
		name     string
		initial  VoteSet
		member   string
		expected VoteSet
	}{
		{name: "add to empty", initial: VoteSet{}, member: "bob", expected: VoteSet{"bob"}},
		{name: "add in middle", initial: VoteSet{"alice", "carol"}, member: "bob", expected: VoteSet{"alice", "bob", "carol"}},
		{name: "add at end", initial: VoteSet{"alice"}, member: "zed", expected: VoteSet{"alice", "zed"}},
		{name: "remove present", initial: VoteSet{"alice", "bob", "carol"}, member: "bob", expected: VoteSet{"alice", "carol"}},
		{name: "remove last", initial: VoteSet{"bob"}, member: "bob", expected: VoteSet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append(VoteSet(nil), tt.initial...)
			got := tt.initial.Toggle(tt.member)
			assert.True(t, tt.expected.Equal(got), "got %v", got)
			assert.Equal(t, before, tt.initial, "receiver must not change")
		})
	}
}

func TestVoteSet_ToggleIsInvolution(t *testing.T) {
	set := NewVoteSet("alice", "carol")
	for _, member := range []string{"alice", "bob", "carol", "dave"} {
		assert.True(t, set.Equal(set.Toggle(member).Toggle(member)), member)
	}
}

func TestVoteSet_Contains(t *testing.T) {
	set := NewVoteSet("alice", "bob")
	assert.True(t, set.Contains("alice"))
	assert.True(t, set.Contains("bob"))
	assert.False(t, set.Contains("carol"))
	assert.False(t, VoteSet{}.Contains("alice"))
}

func TestCategory_Valid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("karaoke").Valid())
	assert.False(t, Category("").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusOpen.Terminal())
	assert.True(t, StatusAccepted.Terminal())
	assert.True(t, StatusRerolled.Terminal())
	assert.True(t, StatusExpired.Terminal())
}
