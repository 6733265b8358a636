// Package utils holds small helpers shared by the entrypoints.
package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import "sync"

// MergeErrorChans fans several error channels into one. The returned channel
// closes once every input has closed.
//
//	for err := range MergeErrorChans(httpErrs, metricsErrs) {
//		log.Error("listener failed", logger.ErrorField(err))
//	}
func MergeErrorChans(channels ...<-chan error) <-chan error {
	out := make(chan error)
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				out <- err
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
