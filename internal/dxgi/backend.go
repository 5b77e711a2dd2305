package dxgi

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by NewBackend on platforms without DXGI.
var ErrNotSupported = errors.New("dxgi: desktop duplication is not supported on this platform")

// Object is a reference-counted backend handle.
// AddRef takes an additional reference; Release drops one.
type Object interface {
	AddRef()
	Release()
}

// Backend is the native desktop-duplication surface the package drives.
// Enumeration calls return StatusNotFound (or a nil object) past the last
// index.
type Backend interface {
	CreateFactory() (Factory, error)
	// CreateDevice creates a device and its immediate context on adapter.
	CreateDevice(adapter Adapter) (Device, DeviceContext, error)
}

type Factory interface {
	Object
	EnumAdapter(index uint32) (Adapter, error)
}

type Adapter interface {
	Object
	EnumOutput(index uint32) (Output, error)
}

// Output is a generic output handle as returned by enumeration.
type Output interface {
	Object
	Desc() (OutputDesc, error)
	// Upgrade queries the duplication-capable variant of the output.
	Upgrade() (DuplicableOutput, error)
}

type DuplicableOutput interface {
	Object
	Duplicate(device Device) (Duplication, error)
}

type Device interface {
	Object
	CreateStagingTexture(desc TextureDesc) (Texture, error)
}

type DeviceContext interface {
	Object
	CopyResource(dst, src Texture)
}

// Duplication is one desktop duplication session.
type Duplication interface {
	Object
	Desc() DuplDesc
	AcquireNextFrame(timeoutMs uint32) (FrameInfo, Resource, error)
	ReleaseFrame() error
	MapDesktopSurface() (MappedRect, error)
	UnmapDesktopSurface() error
}

// Resource is the frame object handed out by AcquireNextFrame.
type Resource interface {
	Object
	Texture() (Texture, error)
}

type Texture interface {
	Object
	Desc() TextureDesc
	SetEvictionPriority(priority uint32)
	// Surface queries the CPU-mappable surface view of the texture.
	Surface() (Surface, error)
}

type Surface interface {
	Object
	Map() (MappedRect, error)
	Unmap() error
}

// Rect is a bounding rectangle in desktop coordinates.
type Rect struct {
	Left, Top, Right, Bottom int32
}

func (r Rect) Dx() int { return int(r.Right) - int(r.Left) }
func (r Rect) Dy() int { return int(r.Bottom) - int(r.Top) }

// Rotation mirrors DXGI_MODE_ROTATION.
type Rotation uint32

const (
	RotationUnknown Rotation = iota
	RotationNone
	Rotation90
	Rotation180
	Rotation270
)

func (r Rotation) String() string {
	switch r {
	case RotationNone:
		return "none"
	case Rotation90:
		return "90"
	case Rotation180:
		return "180"
	case Rotation270:
		return "270"
	default:
		return "unknown"
	}
}

func (r Rotation) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rotation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*r = RotationNone
	case "90":
		*r = Rotation90
	case "180":
		*r = Rotation180
	case "270":
		*r = Rotation270
	case "unknown", "":
		*r = RotationUnknown
	default:
		return fmt.Errorf("dxgi: unknown rotation %q", text)
	}
	return nil
}

// Swapped reports whether the native surface is transposed relative to
// the desktop bounds.
func (r Rotation) Swapped() bool { return r == Rotation90 || r == Rotation270 }

// DeviceNameLen is the fixed capacity of an output device name.
const DeviceNameLen = 32

type OutputDesc struct {
	DeviceName        [DeviceNameLen]uint16
	Bounds            Rect
	AttachedToDesktop bool
	Rotation          Rotation
	Monitor           uintptr
}

type DuplDesc struct {
	Width                      uint32
	Height                     uint32
	Format                     uint32
	Rotation                   Rotation
	DesktopImageInSystemMemory bool
}

type FrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            bool
	ProtectedContentMaskedOut bool
	TotalMetadataBufferSize   uint32
}

// TextureDesc has the layout of D3D11_TEXTURE2D_DESC.
type TextureDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32
	SampleQuality  uint32
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

const (
	UsageStaging            = 3
	CPUAccessRead           = 0x20000
	EvictionPriorityMaximum = 0xc8000000
	FormatB8G8R8A8          = 87
)

// MappedRect has the layout of DXGI_MAPPED_RECT.
type MappedRect struct {
	Pitch int32
	Bits  *byte
}

// stagingDesc derives a CPU-readable copy target from a frame texture.
func stagingDesc(src TextureDesc) TextureDesc {
	d := src
	d.Usage = UsageStaging
	d.BindFlags = 0
	d.CPUAccessFlags = CPUAccessRead
	d.MiscFlags = 0
	return d
}
