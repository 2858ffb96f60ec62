package notify

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"chemviz/internal/config"
	"chemviz/internal/events"
)

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Options configures which events leave the process.
type Options struct {
	URLs        []string
	MinSeverity events.Severity
	Cooldown    time.Duration
}

// OptionsFromConfig converts the notify section of the client config.
func OptionsFromConfig(c config.NotifyConfig) Options {
	return Options{
		URLs:        c.URLs,
		MinSeverity: events.ParseSeverity(c.MinSeverity),
		Cooldown:    c.Cooldown,
	}
}

// Dispatcher subscribes to the event bus, applies the severity gate and the
// per-event-type cooldown, and forwards to every configured Shoutrrr URL.
type Dispatcher struct {
	db     *sql.DB // optional; nil disables history
	bus    *events.Bus
	sender Sender
	opts   Options

	// cooldowns tracks the last dispatch time per event type.
	mu        sync.Mutex
	cooldowns map[events.EventType]time.Time

	unsubscribe func()
	stopCh      chan struct{}
	stopped     sync.Once
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given bus and database.
func NewDispatcher(db *sql.DB, bus *events.Bus, sender Sender, opts Options) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		db:        db,
		bus:       bus,
		sender:    sender,
		opts:      opts,
		cooldowns: make(map[events.EventType]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Enabled reports whether any target is configured.
func (d *Dispatcher) Enabled() bool { return len(d.opts.URLs) > 0 }

// Start subscribes to the outcome events and begins dispatching. Without
// targets it does nothing.
func (d *Dispatcher) Start() {
	if !d.Enabled() {
		return
	}
	ch := make(chan events.Event, 256)

	d.unsubscribe = d.bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			config.Logger.Warnf("notify: event queue full, dropping %s event", e.Type)
		}
	}, events.Outcomes...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
	config.Logger.Infof("📣 Notifications enabled: %d target(s), min severity %s",
		len(d.opts.URLs), d.opts.MinSeverity)
}

// Stop drains queued events and waits for the dispatcher goroutine.
func (d *Dispatcher) Stop() {
	d.stopped.Do(func() {
		if d.unsubscribe != nil {
			d.unsubscribe()
		}
		close(d.stopCh)
	})
	d.wg.Wait()
}

// SendTest sends a test message to every target synchronously and returns
// the first error.
func (d *Dispatcher) SendTest() error {
	if !d.Enabled() {
		return fmt.Errorf("no notification targets configured")
	}
	e := events.Event{
		Type:      "test",
		Severity:  events.SeverityInfo,
		Message:   "chemviz test notification",
		Timestamp: time.Now().UTC(),
	}
	var first error
	for _, url := range d.opts.URLs {
		if err := d.dispatch(url, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Dispatcher) handle(e events.Event) {
	if e.Severity < d.opts.MinSeverity {
		return
	}
	if !d.cooldownAllowed(e) {
		return
	}
	for _, url := range d.opts.URLs {
		d.dispatch(url, e)
	}
}

func (d *Dispatcher) cooldownAllowed(e events.Event) bool {
	if d.opts.Cooldown <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.cooldowns[e.Type]; ok && now.Sub(last) < d.opts.Cooldown {
		return false
	}
	d.cooldowns[e.Type] = now
	return true
}

// dispatch sends the notification and records the result.
func (d *Dispatcher) dispatch(url string, e events.Event) error {
	msg := formatMessage(e)
	err := d.sender.Send(url, msg)

	rec := &NotificationRecord{
		Target:    Redact(url),
		EventType: string(e.Type),
		Message:   msg,
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = err.Error()
		config.Logger.Errorf("notify: send to %s failed: %v", rec.Target, err)
	} else {
		rec.Status = StatusSent
		rec.SentAt = time.Now().UTC()
	}

	if d.db != nil {
		if _, dbErr := RecordNotification(d.db, rec); dbErr != nil {
			config.Logger.Errorf("notify: record history: %v", dbErr)
		}
	}
	return err
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	msg := fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	if file := e.Metadata["file"]; file != "" {
		msg = fmt.Sprintf("[%s] [%s] %s", e.Severity, file, e.Message)
	}
	return msg
}
