package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelay_DeliversWhenRoom(t *testing.T) {
	out := make(chan []byte, 1)
	done := make(chan struct{})
	close(done)

	assert.True(t, relay(out, done, []byte("a")))
	assert.Equal(t, []byte("a"), <-out)
}

func TestRelay_GivesUpOnFullStreamAfterStop(t *testing.T) {
	out := make(chan []byte, 1)
	out <- []byte("unread")
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() { result <- relay(out, done, []byte("b")) }()

	select {
	case <-result:
		t.Fatal("relay returned before stop with a full stream")
	case <-time.After(50 * time.Millisecond):
	}

	close(done)
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("relay still blocked after stop")
	}
	assert.Len(t, out, 1)
}
