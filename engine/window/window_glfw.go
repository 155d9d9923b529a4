package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

var errNotOpen = errors.New("window is not open")

// glfwWindow is the GLFW half of an engineWindow.
type glfwWindow struct {
	owner  *engineWindow
	handle *glfw.Window
	open   bool
}

// newPlatformWindow opens the GLFW window without a client API context; WebGPU presents to the native
// surface.
//
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func newPlatformWindow(w *engineWindow) error {
	// GLFW calls must all come from the thread that initialized it.
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfwBool(w.resizable))

	handle, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("glfw create window: %w", err)
	}
	handle.SetSizeLimits(sizeLimit(w.minWidth), sizeLimit(w.minHeight), sizeLimit(w.maxWidth), sizeLimit(w.maxHeight))

	gw := &glfwWindow{owner: w, handle: handle, open: true}
	gw.installCallbacks()
	w.internalWindow = gw

	// The framebuffer can be larger than the requested size on high-DPI displays.
	w.width, w.height = handle.GetFramebufferSize()
	return nil
}

func (gw *glfwWindow) installCallbacks() {
	w := gw.owner
	gw.handle.SetKeyCallback(gw.onKey)
	gw.handle.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})
	gw.handle.SetMouseButtonCallback(gw.onMouseButton)
	gw.handle.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if w.onMouseMove != nil {
			w.onMouseMove(int32(x), int32(y))
		}
	})
	// Pixel sizes, not screen coordinates: the surface is configured from these. A minimised window
	// reports 0x0.
	gw.handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width, w.height = width, height
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})
}

func (gw *glfwWindow) onKey(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	w := gw.owner
	switch {
	case uint32(key) == common.KeyEsc && action == glfw.Press:
		w.RequestClose()
	case action == glfw.Release:
		if w.onKeyUp != nil {
			w.onKeyUp(uint32(key))
		}
	case w.onKeyDown != nil:
		w.onKeyDown(uint32(key))
	}
}

func (gw *glfwWindow) onMouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	w := gw.owner
	if w.onMouseButton == nil || action == glfw.Repeat {
		return
	}
	x, y := gw.handle.GetCursorPos()
	w.onMouseButton(MouseButton(button), action == glfw.Press, int32(x), int32(y))
}

func glfwBool(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

// sizeLimit maps an unset bound to glfw.DontCare.
func sizeLimit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}

func platformWindow(w *engineWindow) *glfwWindow {
	gw, _ := w.internalWindow.(*glfwWindow)
	return gw
}

// platformGetSurfaceDescriptor builds the native surface descriptor through the wgpuglfw bridge
// (Windows, X11, Wayland, macOS).
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw := platformWindow(w)
	if gw == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.handle)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw := platformWindow(w)
	return gw != nil && gw.open && !gw.handle.ShouldClose()
}

// platformCloseWindow destroys the window and terminates GLFW.
//
// Returns:
//   - error: errNotOpen if the window was never created or is already closed
func platformCloseWindow(w *engineWindow) error {
	gw := platformWindow(w)
	if gw == nil || !gw.open {
		return errNotOpen
	}
	gw.open = false
	gw.handle.Destroy()
	glfw.Terminate()
	return nil
}

// platformProcessMessages drains pending events without blocking and reports whether the loop should
// continue.
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
