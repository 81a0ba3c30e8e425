// Package notify decides whether an inbound event becomes a
// user-visible alert. The same logical event can arrive twice — once on
// the live channel and once via push when the app was backgrounded — so
// both transports feed this one dispatcher and dedup happens here.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/negi-jagdish/village-im/pkg/mirror"
)

// Window inside which a repeated (chatID, messageID) pair is suppressed.
const dedupWindow = 1500 * time.Millisecond

// Prefs is the resolved notification configuration for one chat.
type Prefs struct {
	MuteUntil int64 // 0 unset, mirror.MuteAlways permanent, else unix millis
	Tone      string
	Vibrate   bool
}

// PrefsFunc resolves per-chat preferences, typically from the mirror's
// chat summary; ok=false means no per-chat override exists.
type PrefsFunc func(chatID int64) (Prefs, bool)

// Sink is the OS-facing half: a system banner, or in-app feedback only.
type Sink interface {
	PostBanner(id string, chatID int64, title, body, tone string, vibrate bool)
	PlayInApp(tone string, vibrate bool)
}

type Options struct {
	Prefs    PrefsFunc
	OpenChat func() int64 // 0 = no chat screen visible
	Defaults Prefs        // app-wide tone/vibration fallback
	Clock    func() time.Time
}

type Dispatcher struct {
	opts Options
	sink Sink

	mu     sync.Mutex
	recent map[[2]int64]time.Time
}

func New(sink Sink, opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OpenChat == nil {
		opts.OpenChat = func() int64 { return 0 }
	}
	if opts.Prefs == nil {
		opts.Prefs = func(int64) (Prefs, bool) { return Prefs{}, false }
	}
	return &Dispatcher{opts: opts, sink: sink, recent: make(map[[2]int64]time.Time)}
}

// Notify surfaces at most one alert per (chatID, messageID) within the
// dedup window, honoring mute and foreground rules.
func (d *Dispatcher) Notify(chatID, msgID int64, title, body string) {
	now := d.opts.Clock()
	if d.duplicate(chatID, msgID, now) {
		return
	}
	if d.muted(chatID, now) {
		return
	}

	tone, vibrate := d.resolveTone(chatID)
	if d.opts.OpenChat() == chatID {
		// The user is looking at this conversation; a banner would be a
		// redundant overlay.
		d.sink.PlayInApp(tone, vibrate)
		return
	}
	d.sink.PostBanner(uuid.NewString(), chatID, title, body, tone, vibrate)
}

func (d *Dispatcher) duplicate(chatID, msgID int64, now time.Time) bool {
	key := [2]int64{chatID, msgID}
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.recent[key]; ok && now.Sub(at) < dedupWindow {
		return true
	}
	d.recent[key] = now

	// Opportunistic prune keeps the map bounded without a timer.
	if len(d.recent) > 256 {
		for k, at := range d.recent {
			if now.Sub(at) >= dedupWindow {
				delete(d.recent, k)
			}
		}
	}
	return false
}

func (d *Dispatcher) muted(chatID int64, now time.Time) bool {
	p, ok := d.opts.Prefs(chatID)
	if !ok {
		return false
	}
	switch {
	case p.MuteUntil == 0:
		return false
	case p.MuteUntil == mirror.MuteAlways:
		return true
	default:
		return now.UnixMilli() < p.MuteUntil
	}
}

func (d *Dispatcher) resolveTone(chatID int64) (string, bool) {
	if p, ok := d.opts.Prefs(chatID); ok && p.Tone != "" {
		return p.Tone, p.Vibrate
	}
	return d.opts.Defaults.Tone, d.opts.Defaults.Vibrate
}
