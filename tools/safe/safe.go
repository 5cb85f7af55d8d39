package safe

import (
	"PulseChat/logger"
)

// Go starts a goroutine that recovers from panic, so a misbehaving
// handler never takes the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
