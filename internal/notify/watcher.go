package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ghostclick/internal/bus"
)

// Watcher subscribes to the status bus and forwards noteworthy events
// (clicks and errors) as notifications. Errors are rate-limited per task
// so a flapping window does not spam the phone every retry.
type Watcher struct {
	notifier Notifier
	logger   *slog.Logger
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	sub  *bus.Subscription
	done chan struct{}
}

// NewWatcher builds a watcher; cooldown <= 0 defaults to one minute.
func NewWatcher(notifier Notifier, logger *slog.Logger, cooldown time.Duration) *Watcher {
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Watcher{
		notifier: notifier,
		logger:   logger,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
	}
}

// Start begins consuming events from the bus.
func (w *Watcher) Start(b *bus.Bus) {
	w.sub = b.Subscribe(64)
	w.done = make(chan struct{})
	go w.loop()
}

// Stop unsubscribes and waits for the loop to drain.
func (w *Watcher) Stop() {
	if w.sub == nil {
		return
	}
	w.sub.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for e := range w.sub.C {
		switch e.Kind {
		case bus.KindClicked:
			w.send(e.TaskID, "ghostclick: clicked",
				fmt.Sprintf("task %s clicked (%d%% match, %d total)", e.TaskID, int(e.Score*100), e.Clicks))
		case bus.KindError:
			w.send(e.TaskID, "ghostclick: task error",
				fmt.Sprintf("task %s: %s", e.TaskID, e.Message))
		}
	}
}

func (w *Watcher) send(taskID, title, body string) {
	w.mu.Lock()
	last := w.lastSent[taskID]
	if time.Since(last) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastSent[taskID] = time.Now()
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.notifier.Send(ctx, title, body); err != nil {
		w.logger.Warn("notification failed", "task_id", taskID, "error", err)
	}
}
