package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendGuard_FailsFastWhileHeld(t *testing.T) {
	guard := &SendGuard{}

	require.NoError(t, guard.Begin())
	require.True(t, guard.InFlight())
	require.ErrorIs(t, guard.Begin(), ErrSendInProgress)

	guard.End()
	require.False(t, guard.InFlight())
	require.NoError(t, guard.Begin())
}

func TestSendGuard_AtMostOneWinnerUnderContention(t *testing.T) {
	guard := &SendGuard{}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.Begin() == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, winners)
}
