package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinable(t *testing.T) {
	tests := []struct {
		name string
		c    Challenge
		want bool
	}{
		{"upcoming with room", Challenge{Status: StatusUpcoming, MaxParticipants: 3, CurrentParticipants: 1}, true},
		{"active with room", Challenge{Status: StatusActive, MaxParticipants: 3, CurrentParticipants: 2}, true},
		{"full", Challenge{Status: StatusActive, MaxParticipants: 3, CurrentParticipants: 3}, false},
		{"completed", Challenge{Status: StatusCompleted, MaxParticipants: 3}, false},
		{"cancelled", Challenge{Status: StatusCancelled, MaxParticipants: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Joinable())
		})
	}
}

func TestDistributed(t *testing.T) {
	c := Challenge{}
	assert.False(t, c.Distributed())
	now := time.Now()
	c.DistributedAt = &now
	assert.True(t, c.Distributed())
}
