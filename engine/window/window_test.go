package window

import (
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
)

func TestKeyCodesMatchGLFW(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		key  glfw.Key
	}{
		{"bloom", common.KeyB, glfw.KeyB},
		{"lighting", common.KeyL, glfw.KeyL},
		{"post", common.KeyP, glfw.KeyP},
		{"pause", common.KeySpace, glfw.KeySpace},
		{"close", common.KeyEsc, glfw.KeyEscape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, uint32(tt.key))
		})
	}
}

func TestDefaultWindowSize(t *testing.T) {
	w := &engineWindow{width: -1, height: 720}
	assert.Equal(t, common.Size{Width: 0, Height: 720}, w.Size())
	assert.False(t, w.IsRunning(), "a window that was never opened is not running")
}
