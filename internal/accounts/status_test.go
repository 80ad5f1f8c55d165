package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusDeactivated, true},
		{StatusPending, StatusSuspended, false},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusDeactivated, true},
		{StatusSuspended, StatusDeactivated, true},
		{StatusSuspended, StatusActive, false},
		{StatusDeactivated, StatusActive, false},
		{StatusDeactivated, StatusDeactivated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMediumStrength(t *testing.T) {
	assert.True(t, MediumStrength("Secret123"))
	assert.True(t, MediumStrength("abc123"))
	assert.False(t, MediumStrength("abcdef"))
	assert.False(t, MediumStrength("Ab1"))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Mary Ann", titleCase("mARY ann"))
	assert.Equal(t, "Jean-luc", titleCase("jean-LUC"))
	assert.Equal(t, "A  B", titleCase("a  b"))
	assert.Equal(t, titleCase("Mary Ann"), titleCase(titleCase("mary ann")))
}

func TestValidIP(t *testing.T) {
	c := DefaultConstraints()
	assert.True(t, c.validIP("192.168.1.10"))
	assert.True(t, c.validIP("::1"))
	assert.True(t, c.validIP("2001:db8::ff00:42:8329"))
	assert.False(t, c.validIP("256.1.1.1"))
	assert.False(t, c.validIP(42))
}
