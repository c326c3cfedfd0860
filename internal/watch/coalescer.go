package watch

import (
	"log/slog"
	"time"

	"github.com/hupe1980/livemirror/internal/protocol"
)

// DefaultQuietPeriod is the debounce window between the last raw event and
// the notification it produces.
const DefaultQuietPeriod = 100 * time.Millisecond

// Mirror applies a single live change to the mirror tree.
type Mirror interface {
	SyncPath(rel string, removed bool) (bool, error)
}

// NotifyFunc receives each coalesced notification.
type NotifyFunc func(protocol.Notification)

// CoalescerOptions configures a Coalescer.
type CoalescerOptions struct {
	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration

	// Strategy is stamped on every notification.
	Strategy protocol.Strategy

	// Mirror, when set, is updated synchronously for every accepted event.
	Mirror Mirror

	// Notify is called once per quiet window with the most recent path.
	Notify NotifyFunc

	Logger *slog.Logger
}

// Coalescer turns raw change events into at most one notification per
// quiet window. Only the latest path in a burst is reported: when two
// different files change inside one window the earlier one is not
// notified.
type Coalescer struct {
	debouncer *Debouncer
	mirror    Mirror
	strategy  protocol.Strategy
	notify    NotifyFunc
	logger    *slog.Logger
}

// NewCoalescer builds a Coalescer from opts.
func NewCoalescer(opts CoalescerOptions) *Coalescer {
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notify := opts.Notify
	if notify == nil {
		notify = func(protocol.Notification) {}
	}

	c := &Coalescer{
		mirror:   opts.Mirror,
		strategy: opts.Strategy,
		notify:   notify,
		logger:   logger,
	}

	c.debouncer = NewDebouncer(quiet, c.emit)

	return c
}

// OnRawEvent accepts add, change, and unlink events; everything else is
// dropped. Mirroring failures are logged and never block the notification.
func (c *Coalescer) OnRawEvent(ev ChangeEvent) {
	switch ev.Kind {
	case KindAdded, KindModified, KindRemoved:
	default:
		return
	}

	c.logger.Debug("file event", slog.String("path", ev.Path), slog.String("kind", ev.Kind.String()))

	if c.mirror != nil {
		if _, err := c.mirror.SyncPath(ev.Path, ev.Kind == KindRemoved); err != nil {
			c.logger.Error("mirroring change", slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
	}

	c.debouncer.Schedule(ev.Path)
}

// Pending reports whether a notification is waiting for its quiet period.
func (c *Coalescer) Pending() bool {
	return c.debouncer.Pending()
}

// Stop discards any pending notification.
func (c *Coalescer) Stop() {
	c.debouncer.Stop()
}

func (c *Coalescer) emit(path string) {
	n := protocol.NewFileChange(path, c.strategy)

	c.logger.Info("file changed", slog.String("path", n.FilePath))
	c.notify(n)
}
