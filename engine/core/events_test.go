package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSystemFireStopsAtFirstHandler(t *testing.T) {
	es := NewEventSystem()
	calls := []string{}

	es.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "first")
		se, ok := ctx.Data.(*SystemEvent)
		require.True(t, ok)
		assert.Equal(t, uint32(800), se.WindowWidth)
		return true
	})
	es.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "second")
		return false
	})

	handled := es.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 800, WindowHeight: 600}})
	assert.True(t, handled)
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventSystemUnregister(t *testing.T) {
	es := NewEventSystem()
	count := 0
	id := es.Register(EVENT_CODE_APPLICATION_QUIT, func(EventContext) bool {
		count++
		return false
	})

	assert.False(t, es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
	assert.True(t, es.Unregister(EVENT_CODE_APPLICATION_QUIT, id))
	assert.False(t, es.Unregister(EVENT_CODE_APPLICATION_QUIT, id))
	es.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	assert.Equal(t, 1, count)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	require.NoError(t, SetLogLevel(" WARN "))
	err := SetLogLevel("chatty")
	require.Error(t, err)
	assert.True(t, Is(err, ErrInvalidConfig))
	require.NoError(t, SetLogLevel("info"))
}

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Equal(t, uint64(AVG_COUNT), m.TotalFrames())
}
