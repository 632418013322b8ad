// Package idle implements the inactivity-timeout state machine: active →
// warning → expired. Each client watches only its own input; expiry tears
// the local room down and propagates a lifecycle envelope so other
// participants follow.
package idle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/config"
)

type Phase string

const (
	PhaseActive  Phase = "active"
	PhaseWarning Phase = "warning"
	PhaseExpired Phase = "expired"
)

// Callbacks surface the display countdown and the terminal transition.
// They are invoked from the watchdog goroutine and must not block.
type Callbacks struct {
	// OnWarning fires on the active→warning transition with the grace
	// period remaining.
	OnWarning func(remaining time.Duration)
	// OnCountdown fires roughly once per second while warning, purely for
	// display.
	OnCountdown func(secondsLeft int)
	// OnActive fires when activity cancels a pending warning.
	OnActive func()
	// OnExpire fires exactly once when the warning deadline passes.
	OnExpire func()
}

// Watchdog is one inactivity state machine per active room.
type Watchdog struct {
	threshold  time.Duration
	grace      time.Duration
	checkEvery time.Duration
	cb         Callbacks
	log        *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu           sync.Mutex
	phase        Phase
	lastActivity time.Time
	warnDeadline time.Time

	done       chan struct{}
	stopOnce   sync.Once
	expireOnce sync.Once
}

func NewWatchdog(cfg config.IdleConfig, cb Callbacks, log *slog.Logger) *Watchdog {
	if log == nil {
		log = slog.Default()
	}
	w := &Watchdog{
		threshold:  cfg.Threshold,
		grace:      cfg.WarningGrace,
		checkEvery: cfg.CheckEvery,
		cb:         cb,
		log:        log,
		now:        time.Now,
		phase:      PhaseActive,
		done:       make(chan struct{}),
	}
	w.lastActivity = w.now()
	return w
}

// Start runs the periodic activity check and the one-second display
// countdown until Stop.
func (w *Watchdog) Start() {
	go w.run()
}

// Stop cancels all pending timers. Safe to call repeatedly; an expired
// watchdog stays expired.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// Touch records recognized local input (pointer, key, scroll, touch,
// click). While warning it returns the machine to active and cancels the
// countdown; after expiry it is a no-op.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	if w.phase == PhaseExpired {
		w.mu.Unlock()
		return
	}
	w.lastActivity = w.now()
	wasWarning := w.phase == PhaseWarning
	if wasWarning {
		w.phase = PhaseActive
		w.warnDeadline = time.Time{}
	}
	w.mu.Unlock()

	if wasWarning && w.cb.OnActive != nil {
		w.cb.OnActive()
	}
}

func (w *Watchdog) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *Watchdog) run() {
	check := time.NewTicker(w.checkEvery)
	countdown := time.NewTicker(time.Second)
	defer check.Stop()
	defer countdown.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-check.C:
			w.check()
		case <-countdown.C:
			w.countdownTick()
		}
	}
}

// check compares idle time against the threshold and arms the warning.
func (w *Watchdog) check() {
	w.mu.Lock()
	if w.phase != PhaseActive {
		w.mu.Unlock()
		return
	}
	now := w.now()
	if now.Sub(w.lastActivity) < w.threshold {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseWarning
	w.warnDeadline = now.Add(w.grace)
	w.mu.Unlock()

	w.log.Info("inactivity warning armed", "grace", w.grace.String())
	if w.cb.OnWarning != nil {
		w.cb.OnWarning(w.grace)
	}
}

// countdownTick drives the display countdown and fires expiry when the
// deadline passes without activity.
func (w *Watchdog) countdownTick() {
	w.mu.Lock()
	if w.phase != PhaseWarning {
		w.mu.Unlock()
		return
	}
	remaining := w.warnDeadline.Sub(w.now())
	if remaining > 0 {
		w.mu.Unlock()
		if w.cb.OnCountdown != nil {
			w.cb.OnCountdown(int(remaining.Round(time.Second).Seconds()))
		}
		return
	}
	w.phase = PhaseExpired
	w.mu.Unlock()

	w.expireOnce.Do(func() {
		w.log.Info("inactivity deadline passed, expiring session")
		if w.cb.OnExpire != nil {
			w.cb.OnExpire()
		}
	})
}
