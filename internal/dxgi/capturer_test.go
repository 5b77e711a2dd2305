package dxgi

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openCapturer(t *testing.T, b *fakeBackend, spec fakeOutputSpec) (*Display, *Capturer) {
	t.Helper()
	b.adapters = [][]fakeOutputSpec{{spec}}
	d, err := Primary(b)
	if err != nil {
		t.Fatalf("Primary: %v", err)
	}
	c, err := NewCapturer(d)
	if err != nil {
		d.Close()
		t.Fatalf("NewCapturer: %v", err)
	}
	return d, c
}

func shutdown(t *testing.T, b *fakeBackend, d *Display, c *Capturer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d.Close()
	b.w.checkClean(t)
}

func TestFastlaneFrameLength(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	b.pitch = 128
	d, c := openCapturer(t, b, screen("fast", 16, 8))

	if !c.Fastlane() {
		t.Fatal("expected fastlane capturer")
	}
	if b.w.index("AcquireNextFrame 0") < 0 {
		t.Fatalf("expected priming acquisition with zero timeout, events %v", b.w.events)
	}

	for i := 0; i < 3; i++ {
		buf, err := c.Frame(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(buf) != 8*128 {
			t.Fatalf("frame %d length = %d, want height*pitch = %d", i, len(buf), 8*128)
		}
	}
	if n := b.w.count("CreateTexture2D"); n != 0 {
		t.Fatalf("fastlane created %d staging textures", n)
	}
	if n := b.w.count("AcquireNextFrame 100"); n != 3 {
		t.Fatalf("AcquireNextFrame 100 issued %d times, want 3", n)
	}
	shutdown(t, b, d, c)
}

func TestFastlaneReleasesBeforeAcquire(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	d, c := openCapturer(t, b, screen("fast", 16, 8))

	start := len(b.w.events)
	if _, err := c.Frame(time.Millisecond); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	got := b.w.events[start:]
	want := []string{"UnMapDesktopSurface", "ReleaseFrame", "AcquireNextFrame 1", "create frame2", "MapDesktopSurface", "release frame2"}
	if !equalStrings(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	shutdown(t, b, d, c)
}

func TestFastlaneStaticDesktop(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	d, c := openCapturer(t, b, screen("fast", 16, 8))

	first, err := c.Frame(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	b.acquireErrs = []error{StatusWaitTimeout, StatusNotCurrentlyAvail}

	for i := 0; i < 2; i++ {
		buf, err := c.Frame(100 * time.Millisecond)
		if err == nil {
			t.Fatalf("call %d: expected no new frame", i)
		}
		if buf != nil {
			t.Fatalf("call %d: failed call returned a view of %d bytes", i, len(buf))
		}
		if !IsTransient(err) {
			t.Fatalf("call %d: error %v should be transient", i, err)
		}
	}

	second, err := c.Frame(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("recovery frame: %v", err)
	}
	if len(second) == 0 || len(second) != len(first) {
		t.Fatalf("frame sizes %d then %d", len(first), len(second))
	}
	shutdown(t, b, d, c)
}

func TestZeroTimeoutLeavesMemoryUntouched(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	d, c := openCapturer(t, b, screen("fast", 16, 8))

	buf, err := c.Frame(0)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	for i := range buf {
		buf[i] = 0xAB
	}
	maps := b.w.count("MapDesktopSurface")

	b.acquireErrs = []error{StatusWaitTimeout}
	if _, err := c.Frame(0); !errors.Is(err, TimedOut) {
		t.Fatalf("Frame(0) = %v, want TimedOut", err)
	}
	if b.w.count("MapDesktopSurface") != maps {
		t.Fatal("timed out call mapped a new surface")
	}
	for i, v := range b.dup.desktop {
		if v != 0xAB {
			t.Fatalf("backing byte %d changed to %#x", i, v)
		}
	}
	shutdown(t, b, d, c)
}

func TestSlowPathStagingLifecycle(t *testing.T) {
	b := newFakeBackend()
	d, c := openCapturer(t, b, screen("slow", 16, 8))

	if c.Fastlane() {
		t.Fatal("expected slow path")
	}
	if b.w.index("CreateTexture2D usage=3 cpu=0x20000 bind=0 misc=0") < 0 {
		t.Fatalf("staging texture not derived correctly, events %v", b.w.events)
	}
	if b.w.index(fmt.Sprintf("SetEvictionPriority staging0 %#x", uint32(EvictionPriorityMaximum))) < 0 {
		t.Fatalf("eviction priority not set, events %v", b.w.events)
	}

	buf, err := c.Frame(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if len(buf) != 8*64 {
		t.Fatalf("length = %d, want %d", len(buf), 8*64)
	}
	if _, err := c.Frame(10 * time.Millisecond); err != nil {
		t.Fatalf("second frame: %v", err)
	}

	// The second call unmaps and releases exactly the surface the first mapped.
	mapped := b.w.index("Map staging1")
	unmapped := b.w.index("Unmap staging1")
	next := b.w.index("Map staging2")
	if !(mapped < unmapped && unmapped < next) {
		t.Fatalf("staging1 not released between frames, events %v", b.w.events)
	}
	for _, o := range b.w.objects {
		if o.name == "staging1" && o.refs != 0 {
			t.Fatalf("staging1 still holds %d references", o.refs)
		}
	}

	// The frame and source texture are released before the CPU map.
	if rel, m := b.w.index("release frame2"), b.w.index("Map staging1"); rel < 0 || rel > m {
		t.Fatalf("frame2 released after map, events %v", b.w.events)
	}
	if b.w.index("CopyResource staging1 <- frame2") < 0 {
		t.Fatalf("expected GPU copy, events %v", b.w.events)
	}
	shutdown(t, b, d, c)
}

func TestSlowPathCloseUnmapsBeforeRelease(t *testing.T) {
	b := newFakeBackend()
	d, c := openCapturer(t, b, screen("slow", 16, 8))
	if _, err := c.Frame(0); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	c.Close()

	unmap := b.w.index("Unmap staging1")
	dup := b.w.index("release duplication")
	dev := b.w.index("release device")
	ctx := b.w.index("release context")
	if !(unmap >= 0 && unmap < dup && dup < dev && dev < ctx) {
		t.Fatalf("bad teardown order, events %v", b.w.events)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := c.Frame(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Frame after Close = %v", err)
	}
	d.Close()
	b.w.checkClean(t)
}

func TestRotatedDisplayUsesNativeRows(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	spec := fakeOutputSpec{name: "portrait", bounds: Rect{Right: 8, Bottom: 16}, rotation: Rotation270}
	d, c := openCapturer(t, b, spec)

	if c.Rows() != 8 {
		t.Fatalf("rows = %d, want 8", c.Rows())
	}
	buf, err := c.Frame(0)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if len(buf) != 8*int(b.pitch) {
		t.Fatalf("length = %d", len(buf))
	}
	shutdown(t, b, d, c)
}

func TestNewCapturerRollsBack(t *testing.T) {
	b := newFakeBackend()
	b.dupErr = StatusUnsupported
	b.adapters = [][]fakeOutputSpec{{screen("x", 4, 4)}}
	d, err := Primary(b)
	if err != nil {
		t.Fatalf("Primary: %v", err)
	}

	c, err := NewCapturer(d)
	if c != nil || !errors.Is(err, ConnectionRefused) {
		t.Fatalf("NewCapturer = %v, %v", c, err)
	}
	if b.w.index("release device") < 0 || b.w.index("release context") < 0 {
		t.Fatalf("device and context not released, events %v", b.w.events)
	}

	b.dupErr = nil
	b.deviceErr = errors.New("no d3d")
	if _, err := NewCapturer(d); KindOf(err) != Other {
		t.Fatalf("device failure = %v, want Other", err)
	}
	d.Close()
	b.w.checkClean(t)

	if _, err := NewCapturer(d); !errors.Is(err, ErrClosed) {
		t.Fatalf("NewCapturer on closed display = %v", err)
	}
}

func TestPrimingFailureIsTolerated(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	b.acquireErrs = []error{StatusAccessDenied}
	d, c := openCapturer(t, b, screen("locked", 4, 4))

	if b.w.count("ReleaseFrame") != 0 {
		t.Fatal("nothing was acquired, nothing should be released")
	}
	if _, err := c.Frame(0); err != nil {
		t.Fatalf("Frame after failed priming: %v", err)
	}
	shutdown(t, b, d, c)
}

func TestStagingFailureReleasesEverything(t *testing.T) {
	b := newFakeBackend()
	b.stagingErr = StatusInvalidCall
	d, c := openCapturer(t, b, screen("slow", 4, 4))

	_, err := c.Frame(0)
	if !errors.Is(err, InvalidData) {
		t.Fatalf("Frame = %v, want InvalidData", err)
	}
	for _, o := range b.w.objects {
		if o.name == "frame2" && o.refs != 0 {
			t.Fatalf("frame2 holds %d references after failure", o.refs)
		}
	}

	b.stagingErr = nil
	if _, err := c.Frame(0); err != nil {
		t.Fatalf("Frame after recovery: %v", err)
	}
	shutdown(t, b, d, c)
}

func TestLostSessionNeedsRebuild(t *testing.T) {
	b := newFakeBackend()
	b.fastlane = true
	d, c := openCapturer(t, b, screen("x", 4, 4))

	b.acquireErrs = []error{StatusAccessLost}
	_, err := c.Frame(0)
	if !NeedsRebuild(err) || !errors.Is(err, ConnectionReset) {
		t.Fatalf("Frame = %v, want ConnectionReset", err)
	}

	b.acquireErrs = []error{StatusSessionDisconnected}
	_, err = c.Frame(0)
	if !NeedsRebuild(err) || !errors.Is(err, ConnectionAborted) {
		t.Fatalf("Frame = %v, want ConnectionAborted", err)
	}
	shutdown(t, b, d, c)
}

func TestEmptyMappingIsInvalidData(t *testing.T) {
	for _, fast := range []bool{true, false} {
		b := newFakeBackend()
		b.fastlane = fast
		d, c := openCapturer(t, b, screen("x", 4, 4))

		b.nilMap = true
		buf, err := c.Frame(0)
		if !errors.Is(err, InvalidData) || len(buf) != 0 {
			t.Fatalf("fastlane=%v: Frame = %d bytes, %v", fast, len(buf), err)
		}
		b.nilMap = false
		if _, err := c.Frame(0); err != nil {
			t.Fatalf("fastlane=%v: Frame after empty mapping: %v", fast, err)
		}
		shutdown(t, b, d, c)
	}
}

func TestZeroRowDisplayIsInvalidData(t *testing.T) {
	for _, fast := range []bool{true, false} {
		b := newFakeBackend()
		b.fastlane = fast
		d, c := openCapturer(t, b, screen("flat", 16, 0))

		buf, err := c.Frame(0)
		if !errors.Is(err, InvalidData) || len(buf) != 0 {
			t.Fatalf("fastlane=%v: Frame = %d bytes, %v", fast, len(buf), err)
		}
		shutdown(t, b, d, c)
	}
}

func TestTimeoutMillis(t *testing.T) {
	cases := map[time.Duration]uint32{
		-time.Second:            0,
		0:                       0,
		1500 * time.Microsecond: 1,
		time.Second:             1000,
		2000 * time.Hour:        maxTimeoutMs,
	}
	for in, want := range cases {
		if got := timeoutMillis(in); got != want {
			t.Fatalf("timeoutMillis(%v) = %d, want %d", in, got, want)
		}
	}
}
