package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from   State
		event  Event
		want   State
		wantOK bool
	}{
		{StateStopped, EventPlay, StatePlaying, true},
		{StateStopped, EventPause, StateStopped, false},
		{StateStopped, EventStop, StateStopped, false},
		{StatePlaying, EventPlay, StatePlaying, false},
		{StatePlaying, EventPause, StatePaused, true},
		{StatePlaying, EventStop, StateStopped, true},
		{StatePaused, EventPlay, StatePlaying, true},
		{StatePaused, EventPause, StatePaused, false},
		{StatePaused, EventStop, StateStopped, true},
	}

	for _, test := range tests {
		got, ok := Next(test.from, test.event)
		assert.Equal(t, test.want, got, "%s on %s", test.from, test.event)
		assert.Equal(t, test.wantOK, ok, "%s on %s", test.from, test.event)
	}
}

func TestState_Symbol(t *testing.T) {
	assert.Equal(t, "⏵ PLAY", StatePlaying.Symbol())
	assert.Equal(t, "▊ PAUSE", StatePaused.Symbol())
	assert.Equal(t, "■ STOP", StateStopped.Symbol())
}
