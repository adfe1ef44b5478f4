package headless_test

import (
	"testing"

	"github.com/kestrelemu/godmg/dmg/backend"
	"github.com/kestrelemu/godmg/dmg/backend/headless"
	"github.com/kestrelemu/godmg/dmg/video"
	"github.com/stretchr/testify/assert"
)

func TestHeadlessBackend(t *testing.T) {
	h := headless.New(3, headless.SnapshotConfig{})

	err := h.Init(backend.Config{Title: "Test"})
	assert.NoError(t, err)

	frame := video.NewFrameBuffer()

	for i := 0; i < 3; i++ {
		events, err := h.Update(frame)
		assert.NoError(t, err)

		if i < 2 {
			assert.Empty(t, events)
		} else {
			assert.Len(t, events, 1)
			assert.True(t, events[0].Quit)
		}
	}

	assert.NoError(t, h.Cleanup())
}

func TestHeadlessImplementsBackend(t *testing.T) {
	var _ backend.Backend = (*headless.Backend)(nil)
}
