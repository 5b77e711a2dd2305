//go:build windows

package dxgi

import (
	"fmt"
	"unsafe"
)

type nativeBackend struct{}

// NewBackend returns the DXGI 1.2 / Direct3D 11 backend.
func NewBackend() (Backend, error) {
	if err := procCreateDXGIFactory1.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	if err := procD3D11CreateDevice.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	return nativeBackend{}, nil
}

func (nativeBackend) CreateFactory() (Factory, error) {
	var p uintptr
	hr, _, _ := procCreateDXGIFactory1.Call(
		uintptr(unsafe.Pointer(iidIDXGIFactory1)),
		uintptr(unsafe.Pointer(&p)),
	)
	if err := procStatus(hr); err != nil {
		return nil, err
	}
	return &factory{comObject(p)}, nil
}

func (nativeBackend) CreateDevice(a Adapter) (Device, DeviceContext, error) {
	ad, ok := a.(*adapter)
	if !ok || ad == nil {
		return nil, nil, fmt.Errorf("dxgi: adapter %T does not belong to this backend", a)
	}

	var dev, ctx uintptr
	var level uint32
	hr, _, _ := procD3D11CreateDevice.Call(
		uintptr(ad.comObject),
		d3dDriverTypeUnknown,
		0, // no software rasterizer
		0, // flags
		0, // default feature levels
		0,
		d3d11SDKVersion,
		uintptr(unsafe.Pointer(&dev)),
		uintptr(unsafe.Pointer(&level)),
		uintptr(unsafe.Pointer(&ctx)),
	)
	if err := procStatus(hr); err != nil {
		if ctx != 0 {
			comObject(ctx).Release()
		}
		if dev != 0 {
			comObject(dev).Release()
		}
		return nil, nil, err
	}
	log.Debug("d3d11 device created", "featureLevel", fmt.Sprintf("0x%x", level))
	return &device{comObject(dev)}, &deviceContext{comObject(ctx)}, nil
}

type factory struct{ comObject }

func (f *factory) EnumAdapter(index uint32) (Adapter, error) {
	var p uintptr
	if err := f.call(vtblFactory1EnumAdapters1, uintptr(index), uintptr(unsafe.Pointer(&p))); err != nil {
		return nil, err
	}
	return &adapter{comObject(p)}, nil
}

type adapter struct{ comObject }

func (a *adapter) EnumOutput(index uint32) (Output, error) {
	var p uintptr
	if err := a.call(vtblAdapterEnumOutputs, uintptr(index), uintptr(unsafe.Pointer(&p))); err != nil {
		return nil, err
	}
	return &output{comObject(p)}, nil
}

type output struct{ comObject }

func (o *output) Desc() (OutputDesc, error) {
	var d dxgiOutputDesc
	if err := o.call(vtblOutputGetDesc, uintptr(unsafe.Pointer(&d))); err != nil {
		return OutputDesc{}, err
	}
	return d.convert(), nil
}

func (o *output) Upgrade() (DuplicableOutput, error) {
	p, err := o.query(iidIDXGIOutput1)
	if err != nil {
		return nil, err
	}
	return &output1{p}, nil
}

type output1 struct{ comObject }

func (o *output1) Duplicate(d Device) (Duplication, error) {
	dev, ok := d.(*device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("dxgi: device %T does not belong to this backend", d)
	}
	var p uintptr
	if err := o.call(vtblOutput1DuplicateOut, uintptr(dev.comObject), uintptr(unsafe.Pointer(&p))); err != nil {
		return nil, err
	}
	return &duplication{comObject(p)}, nil
}

type device struct{ comObject }

func (d *device) CreateStagingTexture(desc TextureDesc) (Texture, error) {
	var p uintptr
	if err := d.call(vtblDeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&desc)),
		0, // no initial data
		uintptr(unsafe.Pointer(&p)),
	); err != nil {
		return nil, err
	}
	return &texture{comObject(p)}, nil
}

type deviceContext struct{ comObject }

func (c *deviceContext) CopyResource(dst, src Texture) {
	d, ok1 := dst.(*texture)
	s, ok2 := src.(*texture)
	if !ok1 || !ok2 {
		log.Error("CopyResource with foreign textures", "dst", fmt.Sprintf("%T", dst), "src", fmt.Sprintf("%T", src))
		return
	}
	c.callVoid(vtblCtxCopyResource, uintptr(d.comObject), uintptr(s.comObject))
}

type duplication struct{ comObject }

func (d *duplication) Desc() DuplDesc {
	var desc dxgiOutDuplDesc
	d.callVoid(vtblDuplGetDesc, uintptr(unsafe.Pointer(&desc)))
	return desc.convert()
}

func (d *duplication) AcquireNextFrame(timeoutMs uint32) (FrameInfo, Resource, error) {
	var info dxgiOutDuplFrameInfo
	var p uintptr
	err := d.call(vtblDuplAcquireNextFrame,
		uintptr(timeoutMs),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&p)),
	)
	if err != nil {
		if p != 0 {
			comObject(p).Release()
		}
		return FrameInfo{}, nil, err
	}
	return info.convert(), &resource{comObject(p)}, nil
}

func (d *duplication) ReleaseFrame() error {
	return d.call(vtblDuplReleaseFrame)
}

func (d *duplication) MapDesktopSurface() (MappedRect, error) {
	var r dxgiMappedRect
	if err := d.call(vtblDuplMapDesktopSurface, uintptr(unsafe.Pointer(&r))); err != nil {
		return MappedRect{}, err
	}
	return r.convert(), nil
}

func (d *duplication) UnmapDesktopSurface() error {
	return d.call(vtblDuplUnMapDesktopSurface)
}

type resource struct{ comObject }

func (r *resource) Texture() (Texture, error) {
	p, err := r.query(iidID3D11Texture2D)
	if err != nil {
		return nil, err
	}
	return &texture{p}, nil
}

type texture struct{ comObject }

func (t *texture) Desc() TextureDesc {
	var d TextureDesc
	t.callVoid(vtblTexture2DGetDesc, uintptr(unsafe.Pointer(&d)))
	return d
}

func (t *texture) SetEvictionPriority(priority uint32) {
	t.callVoid(vtblResourceSetEvictionPriority, uintptr(priority))
}

func (t *texture) Surface() (Surface, error) {
	p, err := t.query(iidIDXGISurface)
	if err != nil {
		return nil, err
	}
	return &surface{p}, nil
}

type surface struct{ comObject }

func (s *surface) Map() (MappedRect, error) {
	var r dxgiMappedRect
	if err := s.call(vtblSurfaceMap, uintptr(unsafe.Pointer(&r)), dxgiMapRead); err != nil {
		return MappedRect{}, err
	}
	return r.convert(), nil
}

func (s *surface) Unmap() error {
	return s.call(vtblSurfaceUnmap)
}
