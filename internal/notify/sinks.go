package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

const (
	toneDuration    = 500 * time.Millisecond
	toastAutoClose  = 5 * time.Second
	defaultAppTitle = "tableflow"
)

var toneFrequency = map[domain.Priority]float64{
	domain.PriorityLow:    400,
	domain.PriorityMedium: 600,
	domain.PriorityHigh:   800,
	domain.PriorityUrgent: 1000,
}

// Player plays a single tone.
type Player interface {
	Beep(freq float64, d time.Duration) error
}

type beeepPlayer struct{}

func (beeepPlayer) Beep(freq float64, d time.Duration) error {
	return beeep.Beep(freq, int(d.Milliseconds()))
}

// SoundSink returns a listener that beeps for high and urgent notifications.
// A nil player uses the system speaker.
func SoundSink(p Player, logger *slog.Logger) Listener {
	if p == nil {
		p = beeepPlayer{}
	}
	return func(n domain.Notification) {
		if n.Priority != domain.PriorityHigh && n.Priority != domain.PriorityUrgent {
			return
		}
		freq := toneFrequency[n.Priority]
		go func() {
			if err := p.Beep(freq, toneDuration); err != nil {
				logger.Warn("failed to play notification sound", "error", err, "priority", n.Priority)
			}
		}()
	}
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type Toast struct {
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
	Silent             bool
	// AutoClose is zero when the toast stays until dismissed.
	AutoClose time.Duration
}

// Desktop shows operating-system notifications.
type Desktop interface {
	Permission() Permission
	RequestPermission() Permission
	Show(Toast) error
}

type beeepDesktop struct{}

func (beeepDesktop) Permission() Permission        { return PermissionGranted }
func (beeepDesktop) RequestPermission() Permission { return PermissionGranted }

// Show raises the toast. The notification daemon owns closing it, so
// AutoClose is advisory here.
func (beeepDesktop) Show(t Toast) error {
	title := t.Title
	if title == "" {
		title = defaultAppTitle
	}
	if t.RequireInteraction && !t.Silent {
		return beeep.Alert(title, t.Body, "")
	}
	return beeep.Notify(title, t.Body, "")
}

// ToastFor builds the desktop toast for a notification.
func ToastFor(n domain.Notification) Toast {
	t := Toast{
		Title:              n.Title,
		Body:               n.Message,
		Tag:                string(n.Type),
		RequireInteraction: n.Priority == domain.PriorityUrgent,
		Silent:             n.Priority == domain.PriorityLow,
	}
	if n.Priority != domain.PriorityUrgent {
		t.AutoClose = toastAutoClose
	}
	return t
}

type desktopGate struct {
	desktop Desktop
	logger  *slog.Logger

	mu         sync.Mutex
	permission Permission
	requested  bool
}

func (g *desktopGate) allowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.permission == "" {
		g.permission = g.desktop.Permission()
	}
	if g.permission == PermissionDefault && !g.requested {
		g.requested = true
		g.permission = g.desktop.RequestPermission()
		g.logger.Info("desktop notification permission requested", "result", g.permission)
	}
	return g.permission == PermissionGranted
}

// DesktopSink returns a listener that mirrors notifications as desktop toasts
// once the desktop has granted permission. Permission is asked for at most
// once. A nil desktop uses the local notification daemon.
func DesktopSink(d Desktop, logger *slog.Logger) Listener {
	if d == nil {
		d = beeepDesktop{}
	}
	gate := &desktopGate{desktop: d, logger: logger}
	return func(n domain.Notification) {
		go func() {
			if !gate.allowed() {
				return
			}
			if err := d.Show(ToastFor(n)); err != nil {
				logger.Warn("failed to show desktop notification", "error", err, "notification_id", n.ID)
			}
		}()
	}
}
