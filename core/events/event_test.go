package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftescrow/core/types"
)

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: string(e), Attributes: map[string]string{}}
}

func TestBufferDrainAndDiscard(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent("a"))
	buf.Emit(nil)
	buf.Emit(testEvent("b"))

	drained := buf.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "a", drained[0].EventType())
	require.Empty(t, buf.Drain())

	buf.Emit(testEvent("c"))
	buf.Discard()
	require.Empty(t, buf.Drain())
}

func TestMultiEmitterFansOut(t *testing.T) {
	var first, second Buffer
	multi := MultiEmitter{&first, nil, &second, NoopEmitter{}}
	multi.Emit(testEvent("x"))
	require.Len(t, first.Drain(), 1)
	require.Len(t, second.Drain(), 1)
}
