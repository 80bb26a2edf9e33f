package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenStatement(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{
			name:    "default channel",
			channel: NotificationChannel,
			want:    `LISTEN "outbox_events"`,
		},
		{
			name:    "embedded quote is escaped",
			channel: `out"box`,
			want:    `LISTEN "out""box"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listenStatement(tt.channel))
		})
	}
}
