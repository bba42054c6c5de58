package broadcast

import (
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		ok      bool
	}{
		{`{"message":"/pause"}`, "/pause", true},
		{`{"message":"  /seek 01:30 "}`, "/seek 01:30", true},
		{`{"message":"hello"}`, "", false},
		{`not json`, "", false},
		{`{}`, "", false},
	}
	for _, test := range tests {
		got, ok := chatCommand([]byte(test.payload))
		assert.Equal(t, test.ok, ok, test.payload)
		assert.Equal(t, test.want, got, test.payload)
	}
}

func TestViewerToken(t *testing.T) {
	opts := Options{Key: "devkey", Secret: "secret", Room: "tapedeck"}

	token, err := ViewerToken(opts, "viewer1", time.Hour)
	require.NoError(t, err)

	v, err := auth.ParseAPIToken(token)
	require.NoError(t, err)
	assert.Equal(t, "devkey", v.APIKey())
	assert.Equal(t, "viewer1", v.Identity())
}
