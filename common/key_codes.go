package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyB     = 66  // B key (ASCII), toggles bloom in the demo
	KeyL     = 76  // L key (ASCII), toggles lighting in the demo
	KeyP     = 80  // P key (ASCII), cycles post-process presets in the demo
	KeySpace = 32  // Spacebar (ASCII), pauses motion in the demo
	KeyEsc   = 256 // Escape key (GLFW), closes the window
)
