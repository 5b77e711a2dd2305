package dxgi

import (
	"errors"
	"time"
	"unsafe"

	"github.com/breeze-rmm/scrap/internal/logging"
)

// ErrClosed is returned by Frame after Close, and by NewCapturer for a
// closed Display.
var ErrClosed = errors.New("dxgi: capturer or display closed")

const maxTimeoutMs = 0xFFFFFFFE

// Capturer streams frames of one display through a duplication session.
//
// In fastlane mode the session's desktop image already lives in system
// memory and is mapped in place. Otherwise each frame is copied on the GPU
// into a fresh staging texture whose surface stays mapped until the next
// Frame call.
type Capturer struct {
	device      ref[Device]
	context     ref[DeviceContext]
	duplication ref[Duplication]
	fastlane    bool

	// surface is held only while a slow-path frame is mapped.
	surface       ref[Surface]
	desktopMapped bool
	frameHeld     bool

	rows   int
	data   *byte
	length int
	info   FrameInfo
	closed bool
}

// NewCapturer starts a duplication session for d. The Display is borrowed
// and may be closed once the Capturer exists.
func NewCapturer(d *Display) (*Capturer, error) {
	if d == nil || d.closed() {
		return nil, ErrClosed
	}

	dev, ctx, err := d.backend.CreateDevice(d.adapter.get())
	c := &Capturer{device: own(dev), context: own(ctx), rows: nativeRows(d)}
	if err != nil {
		c.Close()
		st, _ := statusOf(err)
		return nil, &Error{Op: "D3D11CreateDevice", Status: st, Kind: Other, Err: err}
	}

	dup, err := d.output.get().Duplicate(dev)
	c.duplication = own(dup)
	if err != nil {
		c.Close()
		return nil, translate("DuplicateOutput", err)
	}
	if !c.duplication.valid() {
		c.Close()
		return nil, &Error{Op: "DuplicateOutput", Kind: Other, Err: errors.New("backend returned no session")}
	}

	c.fastlane = dup.Desc().DesktopImageInSystemMemory

	// Prime the session. "No frame yet" is the expected outcome; anything
	// else is logged but does not fail construction.
	// TODO: decide whether PermissionDenied here should fail NewCapturer.
	if err := c.load(0); err != nil && !errors.Is(err, TimedOut) {
		log.Warn("initial frame load failed", logging.KeyDisplay, d.Name(), logging.KeyError, err)
	}

	log.Debug("duplication started", logging.KeyDisplay, d.Name(), "fastlane", c.fastlane, "rows", c.rows)
	return c, nil
}

// nativeRows is the number of rows in the duplicated surface. The surface
// keeps the panel's native orientation, so for 90 and 270 degree rotations
// it has as many rows as the desktop bounds are wide.
func nativeRows(d *Display) int {
	if d.Rotation().Swapped() {
		return d.Width()
	}
	return d.Height()
}

// Fastlane reports whether frames are mapped directly from system memory.
func (c *Capturer) Fastlane() bool { return c.fastlane }

// Rows is the number of pitch-sized rows in every returned frame.
func (c *Capturer) Rows() int { return c.rows }

// LastFrameInfo returns the metadata of the most recent acquisition.
func (c *Capturer) LastFrameInfo() FrameInfo { return c.info }

// Frame waits up to timeout for the next desktop frame and returns a view
// of it. The view is rows*pitch bytes long; pitch can exceed width*4.
// It is invalidated by the next Frame call and by Close.
//
// Errors are *Error values; TimedOut and Interrupted may be retried,
// ConnectionAborted and ConnectionReset require a new Capturer.
func (c *Capturer) Frame(timeout time.Duration) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	c.unmapPrevious()
	c.releasePreviousFrame()

	if err := c.load(timeoutMillis(timeout)); err != nil {
		return nil, err
	}
	return unsafe.Slice(c.data, c.length), nil
}

func timeoutMillis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > maxTimeoutMs:
		return maxTimeoutMs
	}
	return uint32(ms)
}

// unmapPrevious drops whatever the last successful load mapped.
func (c *Capturer) unmapPrevious() {
	c.data, c.length = nil, 0

	if c.fastlane {
		if c.desktopMapped {
			c.desktopMapped = false
			ignoreStatus("UnMapDesktopSurface", c.duplication.get().UnmapDesktopSurface())
		}
		return
	}
	if c.surface.valid() {
		ignoreStatus("IDXGISurface::Unmap", c.surface.get().Unmap())
		c.surface.release()
	}
}

func (c *Capturer) releasePreviousFrame() {
	if !c.frameHeld {
		return
	}
	c.frameHeld = false
	ignoreStatus("ReleaseFrame", c.duplication.get().ReleaseFrame())
}

// load acquires the next frame and maps it. On error no view is set.
func (c *Capturer) load(timeoutMs uint32) error {
	dup := c.duplication.get()

	info, res, err := dup.AcquireNextFrame(timeoutMs)
	frame := own(res)
	defer frame.release()
	if err != nil {
		return translate("AcquireNextFrame", err)
	}
	c.frameHeld = true
	c.info = info

	if c.fastlane {
		rect, err := dup.MapDesktopSurface()
		if err != nil {
			return translate("MapDesktopSurface", err)
		}
		c.desktopMapped = true
		// The frame resource is not needed once the desktop surface is mapped.
		frame.release()
		return c.setView("MapDesktopSurface", rect)
	}
	if !frame.valid() {
		return &Error{Op: "AcquireNextFrame", Kind: InvalidData, Err: errors.New("no frame resource")}
	}
	return c.loadStaged(&frame)
}

// loadStaged copies the acquired frame into a new staging texture and maps
// it for reading. The frame reference is released before mapping.
func (c *Capturer) loadStaged(frame *ref[Resource]) error {
	tex, err := frame.get().Texture()
	src := own(tex)
	defer src.release()
	if err != nil {
		return translate("QueryInterface(ID3D11Texture2D)", err)
	}

	staging, err := c.device.get().CreateStagingTexture(stagingDesc(tex.Desc()))
	dst := own(staging)
	defer dst.release()
	if err != nil {
		return translate("CreateTexture2D", err)
	}

	staging.SetEvictionPriority(EvictionPriorityMaximum)
	c.context.get().CopyResource(staging, tex)
	frame.release()
	src.release()

	surf, err := staging.Surface()
	s := own(surf)
	if err != nil {
		s.release()
		return translate("QueryInterface(IDXGISurface)", err)
	}
	rect, err := surf.Map()
	if err != nil {
		s.release()
		return translate("IDXGISurface::Map", err)
	}
	c.surface = s
	return c.setView("IDXGISurface::Map", rect)
}

func (c *Capturer) setView(op string, r MappedRect) error {
	if r.Bits == nil || r.Pitch <= 0 {
		return &Error{Op: op, Kind: InvalidData, Err: errors.New("mapping returned no data")}
	}
	if c.rows <= 0 {
		return &Error{Op: op, Kind: InvalidData, Err: errors.New("display has no rows")}
	}
	c.data = r.Bits
	c.length = c.rows * int(r.Pitch)
	return nil
}

// Close unmaps any mapped frame, then releases the session, device and
// context in that order. It is safe to call more than once.
func (c *Capturer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.duplication.valid() {
		c.unmapPrevious()
		c.releasePreviousFrame()
	}
	c.surface.release()
	c.duplication.release()
	c.device.release()
	c.context.release()
	return nil
}
