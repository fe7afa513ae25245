package install

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/host/hosttest"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
)

func newChannel() (*Channel, *hosttest.Window, *hosttest.Navigator) {
	win := &hosttest.Window{}
	nav := &hosttest.Navigator{UA: "Mozilla/5.0"}
	return New(win, nav, nil), win, nav
}

func TestCaptureMakesInstallable(t *testing.T) {
	ch, win, _ := newChannel()

	var changes atomic.Int32
	ch.SetOnInstallabilityChange(func() { changes.Add(1) })

	assert.False(t, ch.IsInstallable())

	ev := hosttest.NewPromptEvent()
	win.FireBeforeInstallPrompt(ev)

	assert.True(t, ev.Prevented())
	assert.True(t, ch.IsInstallable())
	assert.Equal(t, int32(1), changes.Load())
}

func TestShowInstallPromptConsumesHandle(t *testing.T) {
	tests := []struct {
		name   string
		choice host.Choice
	}{
		{name: "accepted", choice: host.ChoiceAccepted},
		{name: "dismissed", choice: host.ChoiceDismissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, win, _ := newChannel()
			metrics := monitoring.NewMetrics()
			ch.WithMetrics(metrics)

			ev := hosttest.NewPromptEvent()
			win.FireBeforeInstallPrompt(ev)
			ev.Choices <- tt.choice

			choice, err := ch.ShowInstallPrompt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.choice, choice)
			assert.Equal(t, 1, ev.Prompts())
			assert.False(t, ch.IsInstallable())
			assert.Equal(t, int64(1), metrics.Snapshot().InstallPrompts)
		})
	}
}

func TestShowInstallPromptWithoutHandle(t *testing.T) {
	ch, _, _ := newChannel()

	choice, err := ch.ShowInstallPrompt(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, choice)
}

func TestShowInstallPromptFailureDiscards(t *testing.T) {
	ch, win, _ := newChannel()

	ev := hosttest.NewPromptEvent()
	ev.PromptErr = errors.New("prompt already shown")
	win.FireBeforeInstallPrompt(ev)

	_, err := ch.ShowInstallPrompt(context.Background())
	assert.ErrorIs(t, err, ev.PromptErr)
	assert.False(t, ch.Captured())
}

func TestShowInstallPromptCancelled(t *testing.T) {
	ch, win, _ := newChannel()
	win.FireBeforeInstallPrompt(hosttest.NewPromptEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ch.ShowInstallPrompt(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ch.Captured())
}

func TestPromptCapturedDuringWaitIsKept(t *testing.T) {
	ch, win, _ := newChannel()

	first := hosttest.NewPromptEvent()
	win.FireBeforeInstallPrompt(first)

	done := make(chan host.Choice)
	go func() {
		choice, _ := ch.ShowInstallPrompt(context.Background())
		done <- choice
	}()

	require.Eventually(t, func() bool { return first.Prompts() == 1 }, time.Second, time.Millisecond)

	second := hosttest.NewPromptEvent()
	win.FireBeforeInstallPrompt(second)
	first.Choices <- host.ChoiceDismissed

	assert.Equal(t, host.ChoiceDismissed, <-done)
	assert.True(t, ch.IsInstallable())
}

func TestLastCaptureWins(t *testing.T) {
	ch, win, _ := newChannel()

	first := hosttest.NewPromptEvent()
	second := hosttest.NewPromptEvent()
	win.FireBeforeInstallPrompt(first)
	win.FireBeforeInstallPrompt(second)

	second.Choices <- host.ChoiceAccepted
	_, err := ch.ShowInstallPrompt(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, first.Prompts())
	assert.Equal(t, 1, second.Prompts())
}

func TestAppInstalledDiscards(t *testing.T) {
	ch, win, _ := newChannel()

	var changes atomic.Int32
	ch.SetOnInstallabilityChange(func() { changes.Add(1) })

	win.FireBeforeInstallPrompt(hosttest.NewPromptEvent())
	win.FireAppInstalled()

	assert.False(t, ch.IsInstallable())
	assert.Equal(t, int32(2), changes.Load())
}

func TestIsInstalled(t *testing.T) {
	tests := []struct {
		name       string
		media      bool
		standalone bool
		want       bool
	}{
		{name: "browser tab", want: false},
		{name: "display mode standalone", media: true, want: true},
		{name: "platform standalone flag", standalone: true, want: true},
		{name: "both", media: true, standalone: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, win, nav := newChannel()
			win.SetMedia(StandaloneQuery, tt.media)
			nav.IsStandalone = tt.standalone

			assert.Equal(t, tt.want, ch.IsInstalled())

			// Installed state hides a captured prompt but does not drop it.
			win.FireBeforeInstallPrompt(hosttest.NewPromptEvent())
			assert.Equal(t, !tt.want, ch.IsInstallable())
			assert.True(t, ch.Captured())
		})
	}
}
