package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, true},
		{StatusAccepted, StatusEscalated, true},
		{StatusEscalated, StatusAcknowledged, true},
		{StatusEscalated, StatusCompleted, false},
		{StatusAcknowledged, StatusPending, false},
		{StatusCompleted, StatusEscalated, false},
		{StatusHandled, StatusHandled, false},
		{"", StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
