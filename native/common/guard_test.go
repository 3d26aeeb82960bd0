package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	require.NoError(t, Guard(nil, "listing"))
	pauses := NewPauseSet([]string{" Listing ", ""})
	require.ErrorIs(t, Guard(pauses, "listing"), ErrModulePaused)
	require.NoError(t, Guard(pauses, "token"))
	require.NoError(t, Guard(pauses, ""))
}
