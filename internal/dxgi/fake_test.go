package dxgi

import (
	"fmt"
	"strings"
	"testing"
)

// fakeWorld records every backend call and tracks reference counts so
// tests can assert ordering and leaks.
type fakeWorld struct {
	events     []string
	objects    []*fakeObj
	violations []string
}

func (w *fakeWorld) record(format string, args ...any) {
	w.events = append(w.events, fmt.Sprintf(format, args...))
}

func (w *fakeWorld) violate(format string, args ...any) {
	w.violations = append(w.violations, fmt.Sprintf(format, args...))
}

func (w *fakeWorld) newObj(name string) *fakeObj {
	o := &fakeObj{w: w, name: name, refs: 1}
	w.objects = append(w.objects, o)
	w.record("create %s", name)
	return o
}

// index returns the position of the first event equal to ev, or -1.
func (w *fakeWorld) index(ev string) int {
	for i, e := range w.events {
		if e == ev {
			return i
		}
	}
	return -1
}

func (w *fakeWorld) count(prefix string) int {
	n := 0
	for _, e := range w.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (w *fakeWorld) checkClean(t *testing.T) {
	t.Helper()
	for _, o := range w.objects {
		if o.refs != 0 {
			t.Errorf("%s leaked with %d references", o.name, o.refs)
		}
	}
	for _, v := range w.violations {
		t.Errorf("backend contract violation: %s", v)
	}
}

type fakeObj struct {
	w    *fakeWorld
	name string
	refs int
	// onRelease runs when the last reference goes away.
	onRelease func()
}

func (o *fakeObj) AddRef() {
	o.refs++
	o.w.record("addref %s", o.name)
}

func (o *fakeObj) Release() {
	o.refs--
	o.w.record("release %s", o.name)
	if o.refs < 0 {
		o.w.violate("%s released too often", o.name)
	}
	if o.refs == 0 && o.onRelease != nil {
		o.onRelease()
	}
}

type fakeOutputSpec struct {
	name     string
	bounds   Rect
	rotation Rotation
	noDup    bool
}

type fakeBackend struct {
	w        *fakeWorld
	adapters [][]fakeOutputSpec

	fastlane    bool
	pitch       int32
	deviceErr   error
	dupErr      error
	stagingErr  error
	surfaceErr  error
	mapErr      error
	nilMap      bool
	acquireErrs []error

	surfaces []*fakeSurface
	dup      *fakeDuplication
}

func newFakeBackend(adapters ...[]fakeOutputSpec) *fakeBackend {
	return &fakeBackend{w: &fakeWorld{}, adapters: adapters, pitch: 64}
}

func screen(name string, w, h int32) fakeOutputSpec {
	return fakeOutputSpec{name: name, bounds: Rect{Right: w, Bottom: h}, rotation: RotationNone}
}

func (b *fakeBackend) CreateFactory() (Factory, error) {
	return &fakeFactory{fakeObj: b.w.newObj("factory"), b: b}, nil
}

func (b *fakeBackend) CreateDevice(a Adapter) (Device, DeviceContext, error) {
	b.w.record("CreateDevice %s", a.(*fakeAdapter).name)
	if b.deviceErr != nil {
		return nil, nil, b.deviceErr
	}
	return &fakeDevice{fakeObj: b.w.newObj("device"), b: b},
		&fakeContext{fakeObj: b.w.newObj("context"), b: b}, nil
}

type fakeFactory struct {
	*fakeObj
	b *fakeBackend
}

func (f *fakeFactory) EnumAdapter(i uint32) (Adapter, error) {
	f.w.record("EnumAdapter %d", i)
	if int(i) >= len(f.b.adapters) {
		return nil, StatusNotFound
	}
	return &fakeAdapter{fakeObj: f.w.newObj(fmt.Sprintf("adapter%d", i)), b: f.b, outputs: f.b.adapters[i]}, nil
}

type fakeAdapter struct {
	*fakeObj
	b       *fakeBackend
	outputs []fakeOutputSpec
}

func (a *fakeAdapter) EnumOutput(i uint32) (Output, error) {
	a.w.record("EnumOutput %s %d", a.name, i)
	if int(i) >= len(a.outputs) {
		return nil, StatusNotFound
	}
	return &fakeOutput{fakeObj: a.w.newObj(fmt.Sprintf("%s/output%d", a.name, i)), b: a.b, spec: a.outputs[i]}, nil
}

type fakeOutput struct {
	*fakeObj
	b    *fakeBackend
	spec fakeOutputSpec
}

func (o *fakeOutput) Desc() (OutputDesc, error) {
	var d OutputDesc
	copy(d.DeviceName[:], []uint16(utf16Of(o.spec.name)))
	d.Bounds = o.spec.bounds
	d.Rotation = o.spec.rotation
	d.AttachedToDesktop = true
	return d, nil
}

func utf16Of(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		out = append(out, uint16(r))
	}
	return out
}

func (o *fakeOutput) Upgrade() (DuplicableOutput, error) {
	if o.spec.noDup {
		return nil, StatusUnsupported
	}
	return &fakeOutput1{fakeObj: o.w.newObj(o.name + "/1"), b: o.b, spec: o.spec}, nil
}

type fakeOutput1 struct {
	*fakeObj
	b    *fakeBackend
	spec fakeOutputSpec
}

func (o *fakeOutput1) Duplicate(d Device) (Duplication, error) {
	o.w.record("DuplicateOutput %s", o.name)
	if o.b.dupErr != nil {
		return nil, o.b.dupErr
	}
	w, h := o.spec.bounds.Dx(), o.spec.bounds.Dy()
	if o.spec.rotation.Swapped() {
		w, h = h, w
	}
	dup := &fakeDuplication{
		fakeObj: o.w.newObj("duplication"),
		b:       o.b,
		width:   uint32(w),
		height:  uint32(h),
		desktop: make([]byte, max(h, 1)*int(o.b.pitch)),
	}
	o.b.dup = dup
	return dup, nil
}

type fakeDevice struct {
	*fakeObj
	b *fakeBackend
}

func (d *fakeDevice) CreateStagingTexture(desc TextureDesc) (Texture, error) {
	d.w.record("CreateTexture2D usage=%d cpu=%#x bind=%d misc=%d", desc.Usage, desc.CPUAccessFlags, desc.BindFlags, desc.MiscFlags)
	if d.b.stagingErr != nil {
		return nil, d.b.stagingErr
	}
	n := 0
	for _, o := range d.w.objects {
		if strings.HasPrefix(o.name, "staging") {
			n++
		}
	}
	return &fakeTexture{fakeObj: d.w.newObj(fmt.Sprintf("staging%d", n)), b: d.b, desc: desc}, nil
}

type fakeContext struct {
	*fakeObj
	b *fakeBackend
}

func (c *fakeContext) CopyResource(dst, src Texture) {
	c.w.record("CopyResource %s <- %s", dst.(*fakeTexture).name, src.(*fakeTexture).name)
	dst.(*fakeTexture).copies++
}

type fakeDuplication struct {
	*fakeObj
	b             *fakeBackend
	width, height uint32
	desktop       []byte
	frames        int
	held          bool
	mapped        bool
}

func (d *fakeDuplication) Desc() DuplDesc {
	return DuplDesc{Width: d.width, Height: d.height, DesktopImageInSystemMemory: d.b.fastlane}
}

func (d *fakeDuplication) AcquireNextFrame(timeoutMs uint32) (FrameInfo, Resource, error) {
	d.w.record("AcquireNextFrame %d", timeoutMs)
	if d.held {
		d.w.violate("AcquireNextFrame with a frame outstanding")
		return FrameInfo{}, nil, StatusInvalidCall
	}
	if len(d.b.acquireErrs) > 0 {
		err := d.b.acquireErrs[0]
		d.b.acquireErrs = d.b.acquireErrs[1:]
		if err != nil {
			return FrameInfo{}, nil, err
		}
	}
	d.held = true
	d.frames++
	tex := TextureDesc{Width: d.width, Height: d.height, MipLevels: 1, ArraySize: 1, Format: FormatB8G8R8A8, SampleCount: 1, BindFlags: 0x20, MiscFlags: 0x2}
	res := &fakeResource{fakeObj: d.w.newObj(fmt.Sprintf("frame%d", d.frames)), b: d.b, desc: tex}
	return FrameInfo{AccumulatedFrames: 1, LastPresentTime: int64(d.frames)}, res, nil
}

func (d *fakeDuplication) ReleaseFrame() error {
	d.w.record("ReleaseFrame")
	if d.mapped {
		d.w.violate("ReleaseFrame while desktop surface mapped")
	}
	if !d.held {
		return StatusInvalidCall
	}
	d.held = false
	return nil
}

func (d *fakeDuplication) MapDesktopSurface() (MappedRect, error) {
	d.w.record("MapDesktopSurface")
	if !d.b.fastlane {
		return MappedRect{}, StatusUnsupported
	}
	if d.b.mapErr != nil {
		return MappedRect{}, d.b.mapErr
	}
	if d.mapped {
		d.w.violate("MapDesktopSurface twice")
	}
	d.mapped = true
	if d.b.nilMap {
		return MappedRect{}, nil
	}
	return MappedRect{Pitch: d.b.pitch, Bits: &d.desktop[0]}, nil
}

func (d *fakeDuplication) UnmapDesktopSurface() error {
	d.w.record("UnMapDesktopSurface")
	if !d.mapped {
		return StatusInvalidCall
	}
	d.mapped = false
	return nil
}

type fakeResource struct {
	*fakeObj
	b    *fakeBackend
	desc TextureDesc
}

func (r *fakeResource) Texture() (Texture, error) {
	r.AddRef()
	return &fakeTexture{fakeObj: r.fakeObj, b: r.b, desc: r.desc}, nil
}

type fakeTexture struct {
	*fakeObj
	b        *fakeBackend
	desc     TextureDesc
	priority uint32
	copies   int
}

func (t *fakeTexture) Desc() TextureDesc { return t.desc }

func (t *fakeTexture) SetEvictionPriority(p uint32) {
	t.w.record("SetEvictionPriority %s %#x", t.name, p)
	t.priority = p
}

func (t *fakeTexture) Surface() (Surface, error) {
	if t.b.surfaceErr != nil {
		return nil, t.b.surfaceErr
	}
	t.AddRef()
	s := &fakeSurface{fakeObj: t.fakeObj, b: t.b, buf: make([]byte, max(int(t.desc.Height), 1)*int(t.b.pitch))}
	t.b.surfaces = append(t.b.surfaces, s)
	t.fakeObj.onRelease = func() {
		if s.mapped {
			t.w.violate("%s destroyed while mapped", t.name)
		}
	}
	return s, nil
}

type fakeSurface struct {
	*fakeObj
	b      *fakeBackend
	buf    []byte
	mapped bool
}

func (s *fakeSurface) Map() (MappedRect, error) {
	s.w.record("Map %s", s.name)
	if s.b.mapErr != nil {
		return MappedRect{}, s.b.mapErr
	}
	s.mapped = true
	if s.b.nilMap {
		return MappedRect{}, nil
	}
	return MappedRect{Pitch: s.b.pitch, Bits: &s.buf[0]}, nil
}

func (s *fakeSurface) Unmap() error {
	s.w.record("Unmap %s", s.name)
	if !s.mapped {
		return StatusInvalidCall
	}
	s.mapped = false
	return nil
}
