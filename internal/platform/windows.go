//go:build windows

package platform

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"ghostclick/internal/vision"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")
	shcore = windows.NewLazySystemDLL("shcore.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procIsIconic                 = user32.NewProc("IsIconic")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procGetDpiForWindow          = user32.NewProc("GetDpiForWindow")
	procSetProcessDpiAwareCtx    = user32.NewProc("SetProcessDpiAwarenessContext")
	procPrintWindow              = user32.NewProc("PrintWindow")
	procGetCursorPos             = user32.NewProc("GetCursorPos")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procSendInput                = user32.NewProc("SendInput")
	procGetDC                    = user32.NewProc("GetDC")
	procReleaseDC                = user32.NewProc("ReleaseDC")
	procGetSystemMetrics         = user32.NewProc("GetSystemMetrics")

	procMonitorFromPoint = user32.NewProc("MonitorFromPoint")
	procGetDpiForMonitor = shcore.NewProc("GetDpiForMonitor")

	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
)

const (
	baseDPI = 96.0

	pwRenderFullContent = 0x0002

	mouseeventfMove      = 0x0001
	mouseeventfLeftDown  = 0x0002
	mouseeventfLeftUp    = 0x0004
	mouseeventfRightDown = 0x0008
	mouseeventfRightUp   = 0x0010
	mouseeventfAbsolute  = 0x8000
	mouseeventfVirtual   = 0x4000

	monitorDefaultToNearest = 0x0002

	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79

	// DPI_AWARENESS_CONTEXT_PER_MONITOR_AWARE_V2
	dpiAwarenessPerMonitorV2 = ^uintptr(3) // (DPI_AWARENESS_CONTEXT)-4
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

type winPoint struct {
	X, Y int32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type mouseInput struct {
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type mouseInputEvent struct {
	Type uint32
	_    uint32 // alignment padding before the union
	Mi   mouseInput
}

// windowsDriver talks to user32/gdi32 directly. PrintWindow renders the
// window's own contents, so capture works even when the window is covered
// by others; clicks go through SendInput and do not change the foreground
// window.
type windowsDriver struct{}

// New returns the native driver for this platform.
func New() (Driver, error) {
	// Per-monitor awareness makes GetWindowRect/GetDpiForWindow report
	// physical pixels and per-monitor DPI instead of virtualized values.
	_, _, _ = procSetProcessDpiAwareCtx.Call(dpiAwarenessPerMonitorV2)
	return &windowsDriver{}, nil
}

func (d *windowsDriver) ListWindows() ([]Window, error) {
	var out []Window
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1 // continue enumeration
		}
		title := windowTitle(hwnd)
		if len(title) < 2 {
			return 1
		}
		iconic, _, _ := procIsIconic.Call(hwnd)

		var r winRect
		if ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ret == 0 {
			return 1
		}
		scale := windowScale(hwnd)
		bounds := image.Rect(
			int(math.Round(float64(r.Left)/scale)),
			int(math.Round(float64(r.Top)/scale)),
			int(math.Round(float64(r.Right)/scale)),
			int(math.Round(float64(r.Bottom)/scale)),
		)

		out = append(out, Window{
			Handle:    hwnd,
			Title:     title,
			Process:   processName(hwnd),
			Bounds:    bounds,
			Minimized: iconic != 0,
		})
		return 1
	})
	if ret, _, err := procEnumWindows.Call(cb, 0); ret == 0 {
		return nil, fmt.Errorf("enum windows: %w", err)
	}
	return out, nil
}

func (d *windowsDriver) Capture(win Window) (*vision.Frame, error) {
	hwnd := win.Handle

	// Bounds and scale are re-read here rather than trusted from the
	// descriptor: the window may have moved to a different-DPI monitor
	// since it was listed.
	var r winRect
	if ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ret == 0 {
		return nil, fmt.Errorf("%w: window rect unavailable", ErrCaptureFailed)
	}
	width := int(r.Right - r.Left)
	height := int(r.Bottom - r.Top)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: degenerate window %dx%d", ErrCaptureFailed, width, height)
	}
	scale := windowScale(hwnd)

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("%w: no screen dc", ErrCaptureFailed)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("%w: no memory dc", ErrCaptureFailed)
	}
	defer procDeleteDC.Call(memDC)

	hdr := bitmapInfoHeader{
		Size:     uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		Width:    int32(width),
		Height:   -int32(height), // top-down rows
		Planes:   1,
		BitCount: 32,
	}
	var bits unsafe.Pointer
	bitmap, _, _ := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&hdr)), 0,
		uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bitmap == 0 || bits == nil {
		return nil, fmt.Errorf("%w: dib allocation failed", ErrCaptureFailed)
	}
	defer procDeleteObject.Call(bitmap)

	prev, _, _ := procSelectObject.Call(memDC, bitmap)
	defer procSelectObject.Call(memDC, prev)

	// PW_RENDERFULLCONTENT asks the window to render itself, occluded or
	// not; this is the documented occlusion semantic of the capture layer.
	if ret, _, _ := procPrintWindow.Call(hwnd, memDC, pwRenderFullContent); ret == 0 {
		return nil, fmt.Errorf("%w: print window refused", ErrCaptureFailed)
	}

	stride := width * 4
	raw := unsafe.Slice((*byte)(bits), stride*height)
	pix := make([]byte, len(raw))
	copy(pix, raw)

	return vision.FrameFromBGRA(pix, width, height, stride, scale)
}

func (d *windowsDriver) Click(p image.Point, kind ClickKind) error {
	// The point arrives in logical coordinates; SendInput in a
	// per-monitor-aware process expects physical ones, scaled by the
	// DPI of the monitor under the point.
	phys := vision.LogicalToPixel(p, scaleAtPoint(p))

	var prev winPoint
	_, _, _ = procGetCursorPos.Call(uintptr(unsafe.Pointer(&prev)))

	if err := sendMouse(phys, mouseeventfMove); err != nil {
		return err
	}
	var seq [][2]uint32
	switch kind {
	case ClickDouble:
		seq = [][2]uint32{
			{mouseeventfLeftDown, mouseeventfLeftUp},
			{mouseeventfLeftDown, mouseeventfLeftUp},
		}
	case ClickRight:
		seq = [][2]uint32{{mouseeventfRightDown, mouseeventfRightUp}}
	default:
		seq = [][2]uint32{{mouseeventfLeftDown, mouseeventfLeftUp}}
	}
	for _, pair := range seq {
		if err := sendMouse(phys, pair[0]); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
		if err := sendMouse(phys, pair[1]); err != nil {
			return err
		}
	}

	// Put the cursor back where the user left it.
	_, _, _ = procSetCursorPos.Call(uintptr(prev.X), uintptr(prev.Y))
	return nil
}

// sendMouse posts one absolute mouse event normalized over the virtual
// screen, which spans all monitors including ones at negative origins.
func sendMouse(p image.Point, flags uint32) error {
	vx := getSystemMetrics(smXVirtualScreen)
	vy := getSystemMetrics(smYVirtualScreen)
	vw := getSystemMetrics(smCXVirtualScreen)
	vh := getSystemMetrics(smCYVirtualScreen)
	if vw <= 0 || vh <= 0 {
		return fmt.Errorf("virtual screen metrics unavailable")
	}
	ev := mouseInputEvent{
		Type: 0, // INPUT_MOUSE
		Mi: mouseInput{
			Dx:    int32((float64(p.X-int(vx)) * 65535.0) / float64(vw)),
			Dy:    int32((float64(p.Y-int(vy)) * 65535.0) / float64(vh)),
			Flags: flags | mouseeventfAbsolute | mouseeventfVirtual,
		},
	}
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	if ret != 1 {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

func getSystemMetrics(index uintptr) int {
	ret, _, _ := procGetSystemMetrics.Call(index)
	return int(int32(ret))
}

func windowTitle(hwnd uintptr) string {
	length, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if length == 0 {
		return ""
	}
	buf := make([]uint16, length+1)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), length+1)
	return windows.UTF16ToString(buf[:n])
}

// scaleAtPoint measures the DPI scale of the monitor containing a
// logical screen point.
func scaleAtPoint(p image.Point) float64 {
	// POINT is passed by value: two int32 packed into one word.
	pt := uintptr(uint64(uint32(int32(p.Y)))<<32 | uint64(uint32(int32(p.X))))
	monitor, _, _ := procMonitorFromPoint.Call(pt, monitorDefaultToNearest)
	if monitor == 0 {
		return 1.0
	}
	var dpiX, dpiY uint32
	if ret, _, _ := procGetDpiForMonitor.Call(monitor, 0 /* MDT_EFFECTIVE_DPI */, uintptr(unsafe.Pointer(&dpiX)), uintptr(unsafe.Pointer(&dpiY))); ret != 0 || dpiX == 0 {
		return 1.0
	}
	return float64(dpiX) / baseDPI
}

func windowScale(hwnd uintptr) float64 {
	dpi, _, _ := procGetDpiForWindow.Call(hwnd)
	if dpi == 0 {
		return 1.0
	}
	return float64(dpi) / baseDPI
}

func processName(hwnd uintptr) string {
	var pid uint32
	_, _, _ = procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return ""
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return filepath.Base(windows.UTF16ToString(buf[:size]))
}
