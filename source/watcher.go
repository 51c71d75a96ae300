package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the inbox directory and invokes trigger after file
// create/write activity settles for the debounce window. Bursts of events
// (editors, partial copies) collapse into one trigger. Watch blocks until
// the context is cancelled.
func (l *Local) Watch(ctx context.Context, debounce time.Duration, trigger func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return err
	}

	l.logger.Info("Watching inbox for new documents",
		slog.String("dir", l.dir),
		slog.Duration("debounce", debounce))

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			l.logger.Debug("Inbox event", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timerC
				}
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("Inbox watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			trigger()
		}
	}
}
