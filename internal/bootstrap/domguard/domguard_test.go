package domguard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/host/hosttest"
)

func newBody(t *testing.T, children int) (*hosttest.Document, *hosttest.Element) {
	t.Helper()
	doc := hosttest.NewDocument()
	body := doc.BodyElement()
	for i := 0; i < children; i++ {
		body.AppendChild(doc.CreateElement("div", fmt.Sprintf("static-%d", i)))
	}
	doc.Flush()
	return doc, body
}

func TestActivateRecordsBaseline(t *testing.T) {
	doc, _ := newBody(t, 3)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, 3, h.Baseline())
	assert.True(t, h.Active())
}

func TestActivateWithoutBody(t *testing.T) {
	_, err := New(hosttest.NewDocumentWithoutBody(), nil).Activate()
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestRevertsAdditions(t *testing.T) {
	tests := []struct {
		name     string
		initial  int
		injected int
	}{
		{name: "empty body", initial: 0, injected: 1},
		{name: "loader only", initial: 1, injected: 3},
		{name: "placeholder markup", initial: 4, injected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, body := newBody(t, tt.initial)
			original := body.Children()

			h, err := New(doc, nil).Activate()
			require.NoError(t, err)
			defer h.Release()

			for i := 0; i < tt.injected; i++ {
				body.AppendChild(doc.CreateElement("iframe", ""))
			}
			doc.Flush()

			assert.Equal(t, tt.initial, body.ChildCount())
			assert.Equal(t, original, body.Children(), "static children must survive")
		})
	}
}

func TestCountNeverExceedsBaselineAcrossBatches(t *testing.T) {
	doc, body := newBody(t, 2)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)
	defer h.Release()

	for batch := 0; batch < 5; batch++ {
		for i := 0; i <= batch; i++ {
			body.AppendChild(doc.CreateElement("span", ""))
		}
		doc.Flush()
		assert.LessOrEqual(t, body.ChildCount(), h.Baseline())
	}
}

func TestToleratesRemovals(t *testing.T) {
	doc, body := newBody(t, 3)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)
	defer h.Release()

	last, ok := body.LastChild()
	require.True(t, ok)
	require.NoError(t, body.RemoveChild(last))
	doc.Flush()

	assert.Equal(t, 2, body.ChildCount())

	// Growing back up to the baseline is allowed.
	body.AppendChild(doc.CreateElement("div", ""))
	doc.Flush()
	assert.Equal(t, 3, body.ChildCount())
}

func TestReleaseStopsEnforcement(t *testing.T) {
	doc, body := newBody(t, 1)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)

	h.Release()
	assert.False(t, h.Active())
	assert.Equal(t, 0, doc.ObserverCount())

	body.AppendChild(doc.CreateElement("div", "app-root"))
	doc.Flush()

	assert.Equal(t, 2, body.ChildCount())
}

func TestReleaseDropsQueuedRecords(t *testing.T) {
	doc, body := newBody(t, 1)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)

	body.AppendChild(doc.CreateElement("div", ""))
	h.Release()
	doc.Flush()

	assert.Equal(t, 2, body.ChildCount())
}

func TestReleaseIsIdempotent(t *testing.T) {
	doc, _ := newBody(t, 0)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		h.Release()
		h.Release()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
}

func TestReleaseFromInsideCallback(t *testing.T) {
	doc, body := newBody(t, 1)

	h, err := New(doc, nil).Activate()
	require.NoError(t, err)

	// The application signals takeover from inside a mutation callback.
	releaser := doc.NewMutationObserver(func([]host.MutationRecord) { h.Release() })
	require.NoError(t, releaser.Observe(body, host.ObserveOptions{ChildList: true}))
	defer releaser.Disconnect()

	body.AppendChild(doc.CreateElement("div", ""))
	assert.NotPanics(t, doc.Flush)

	assert.False(t, h.Active())
	assert.Equal(t, 1, body.ChildCount(), "the batch before release is still reverted")

	body.AppendChild(doc.CreateElement("div", "app-root"))
	doc.Flush()
	assert.Equal(t, 2, body.ChildCount())
}
