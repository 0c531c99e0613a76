package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetUser struct {
	ID       int
	Username string
}

func TestCallbackRegistry_DeliversOnce(t *testing.T) {
	reg := NewCallbackRegistry[widgetUser]()

	var got []widgetUser
	token, _, err := reg.Register(func(u widgetUser) { got = append(got, u) })
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	assert.True(t, reg.Deliver(token, widgetUser{ID: 1, Username: "alice"}))
	assert.False(t, reg.Deliver(token, widgetUser{ID: 2}))
	assert.Equal(t, []widgetUser{{ID: 1, Username: "alice"}}, got)
	assert.Equal(t, 0, reg.Len())
}

func TestCallbackRegistry_InstancesDoNotClobber(t *testing.T) {
	reg := NewCallbackRegistry[string]()

	var first, second string
	t1, _, err := reg.Register(func(v string) { first = v })
	require.NoError(t, err)
	t2, _, err := reg.Register(func(v string) { second = v })
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	assert.True(t, reg.Deliver(t2, "b"))
	assert.True(t, reg.Deliver(t1, "a"))
	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestCallbackRegistry_Unregister(t *testing.T) {
	reg := NewCallbackRegistry[string]()

	called := false
	token, unregister, err := reg.Register(func(string) { called = true })
	require.NoError(t, err)

	assert.True(t, unregister())
	assert.False(t, reg.Deliver(token, "x"))
	assert.False(t, called)
	assert.False(t, reg.Deliver("unknown", "x"))
	assert.False(t, unregister())
}

func TestCallbackRegistry_UnregisterAfterDeliver(t *testing.T) {
	reg := NewCallbackRegistry[string]()
	token, unregister, err := reg.Register(func(string) {})
	require.NoError(t, err)

	assert.True(t, reg.Deliver(token, "x"))
	assert.False(t, unregister())
	assert.Equal(t, 0, reg.Len())
}
