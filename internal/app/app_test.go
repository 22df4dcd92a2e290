package app

import (
	"sync"
	"testing"
)

// The scheduler flag is written by the config-reload goroutine while
// Start/Stop read it; this must stay race-free under -race.
func TestSchedulerFlagConcurrentToggle(t *testing.T) {
	t.Parallel()
	var a App
	a.schedEnabled.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				a.schedEnabled.Store(v)
			}
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = a.schedEnabled.Load()
			}
		}()
	}
	wg.Wait()
}
