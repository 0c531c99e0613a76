package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(0)

	a, cancelA := hub.Subscribe(4)
	b, cancelB := hub.Subscribe(4)
	defer cancelB()

	hub.Notify(LevelError, "Authentication cancelled")

	na := <-a
	nb := <-b
	assert.Equal(t, LevelError, na.Level)
	assert.Equal(t, "Authentication cancelled", na.Message)
	assert.Equal(t, na, nb)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	hub.Notify(LevelInfo, "after cancel")
	assert.Equal(t, "after cancel", (<-b).Message)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(0)
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Notify(LevelInfo, "one")
	hub.Notify(LevelInfo, "two")

	assert.Equal(t, "one", (<-ch).Message)
	assert.Empty(t, ch)
}

func TestHub_Recent(t *testing.T) {
	hub := NewHub(2)
	hub.Notify(LevelInfo, "a")
	hub.Notify(LevelInfo, "b")
	hub.Notify(LevelInfo, "c")

	recent := hub.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message)
	assert.Equal(t, "c", recent[1].Message)
}

func TestNotifierFunc(t *testing.T) {
	var got string
	var n Notifier = NotifierFunc(func(_ Level, message string) { got = message })
	n.Notify(LevelWarning, "hello")
	assert.Equal(t, "hello", got)
}
