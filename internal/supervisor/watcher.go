package supervisor

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// startQueueWatcher wakes the tick loop when a job directory appears
// in the queue, so claims do not wait for the next poll. Polling
// remains the contract; when the watcher cannot be created (NFS) the
// loop just runs on its cadence.
func (s *Supervisor) startQueueWatcher(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.WithError(err).Debug("fsnotify unavailable, polling only")
		return
	}
	if err := w.Add(s.layout.Queue()); err != nil {
		s.log.WithError(err).Debug("watching queue failed, polling only")
		_ = w.Close()
		return
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) {
					continue
				}
				select {
				case s.wake <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}
