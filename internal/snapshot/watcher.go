package snapshot

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads the persisted snapshot into a holder whenever a new
// manifest is committed, so an offline rebuild becomes visible to a running
// server without a restart. Events are debounced because a commit touches
// several files in quick succession.
type Watcher struct {
	store  *Store
	holder *Holder
	log    *slog.Logger
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher over the store's directory. The directory
// must exist before watching starts.
func NewWatcher(store *Store, holder *Holder, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(store.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		store:  store,
		holder: holder,
		log:    log,
		fsw:    fsw,
	}, nil
}

// Start watches until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != manifestFile {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("snapshot watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.store.Load()
	if err != nil {
		w.log.Error("reload snapshot", "error", err)
		return
	}

	cur := w.holder.Load()
	if cur != nil && cur.Version == snap.Version {
		return
	}

	w.holder.Publish(snap)
	w.log.Info("snapshot reloaded",
		"version", snap.Version,
		"users", snap.Count(),
		"dimension", snap.Dimension())
}
