package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/tableflow/internal/domain"
	"github.com/joao-fontenele/tableflow/internal/testutil"
)

type fakePlayer struct {
	mu    sync.Mutex
	tones []float64
	err   error
}

func (p *fakePlayer) Beep(freq float64, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tones = append(p.tones, freq)
	return p.err
}

func (p *fakePlayer) played() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.tones...)
}

func TestSoundSink(t *testing.T) {
	player := &fakePlayer{}
	b := newTestBus()
	defer b.Close()
	b.Subscribe(SoundSink(player, testutil.DiscardLogger()))

	b.Notify(domain.Notification{Priority: domain.PriorityLow})
	b.Notify(domain.Notification{Priority: domain.PriorityMedium})
	b.Notify(domain.Notification{Priority: domain.PriorityHigh})
	b.Notify(domain.Notification{Priority: domain.PriorityUrgent})

	testutil.Eventually(t, "two tones", time.Second, func() bool {
		return len(player.played()) == 2
	})

	tones := player.played()
	seen := map[float64]bool{tones[0]: true, tones[1]: true}
	if !seen[800] || !seen[1000] {
		t.Errorf("expected 800 and 1000 Hz tones, got %v", tones)
	}
}

func TestSoundSinkFailureDoesNotAffectBus(t *testing.T) {
	player := &fakePlayer{err: errors.New("no speaker")}
	b := newTestBus()
	defer b.Close()
	b.Subscribe(SoundSink(player, testutil.DiscardLogger()))

	delivered := false
	b.Subscribe(func(domain.Notification) { delivered = true })

	b.Notify(domain.Notification{Priority: domain.PriorityUrgent})
	if !delivered {
		t.Error("expected later listeners to still receive the notification")
	}
	if len(b.Notifications()) != 1 {
		t.Error("expected the notification to stay in the log")
	}
}

type fakeDesktop struct {
	mu         sync.Mutex
	permission Permission
	grant      Permission
	requests   int
	shown      []Toast
}

func (d *fakeDesktop) Permission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission
}

func (d *fakeDesktop) RequestPermission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	d.permission = d.grant
	return d.grant
}

func (d *fakeDesktop) Show(t Toast) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, t)
	return nil
}

func (d *fakeDesktop) snapshot() (int, []Toast) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests, append([]Toast(nil), d.shown...)
}

func TestDesktopSink(t *testing.T) {
	t.Run("requests permission once and shows when granted", func(t *testing.T) {
		desktop := &fakeDesktop{permission: PermissionDefault, grant: PermissionGranted}
		sink := DesktopSink(desktop, testutil.DiscardLogger())

		sink(domain.Notification{Title: "a", Priority: domain.PriorityUrgent})
		sink(domain.Notification{Title: "b", Priority: domain.PriorityLow})

		testutil.Eventually(t, "two toasts", time.Second, func() bool {
			_, shown := desktop.snapshot()
			return len(shown) == 2
		})
		requests, _ := desktop.snapshot()
		if requests != 1 {
			t.Errorf("expected a single permission request, got %d", requests)
		}
	})

	t.Run("denied shows nothing", func(t *testing.T) {
		desktop := &fakeDesktop{permission: PermissionDefault, grant: PermissionDenied}
		sink := DesktopSink(desktop, testutil.DiscardLogger())

		sink(domain.Notification{Title: "a", Priority: domain.PriorityHigh})
		sink(domain.Notification{Title: "b", Priority: domain.PriorityHigh})

		testutil.Eventually(t, "permission request", time.Second, func() bool {
			requests, _ := desktop.snapshot()
			return requests == 1
		})
		time.Sleep(20 * time.Millisecond)

		requests, shown := desktop.snapshot()
		if requests != 1 {
			t.Errorf("expected a single permission request, got %d", requests)
		}
		if len(shown) != 0 {
			t.Errorf("expected no toasts, got %d", len(shown))
		}
	})
}

func TestToastFor(t *testing.T) {
	urgent := ToastFor(domain.Notification{Type: domain.NotificationNewOrder, Priority: domain.PriorityUrgent})
	if !urgent.RequireInteraction || urgent.AutoClose != 0 || urgent.Silent {
		t.Errorf("unexpected urgent toast %+v", urgent)
	}

	low := ToastFor(domain.Notification{Type: domain.NotificationOrderStatus, Priority: domain.PriorityLow})
	if !low.Silent || low.RequireInteraction || low.AutoClose != 5*time.Second {
		t.Errorf("unexpected low toast %+v", low)
	}
	if low.Tag != "order_status" {
		t.Errorf("expected tag to be the notification type, got %q", low.Tag)
	}
}
