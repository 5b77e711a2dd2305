//go:build windows

package dxgi

// dxgiOutputDesc matches DXGI_OUTPUT_DESC.
type dxgiOutputDesc struct {
	DeviceName        [DeviceNameLen]uint16
	Left              int32
	Top               int32
	Right             int32
	Bottom            int32
	AttachedToDesktop int32
	Rotation          uint32
	Monitor           uintptr
}

type dxgiRational struct {
	Numerator   uint32
	Denominator uint32
}

// dxgiModeDesc matches DXGI_MODE_DESC.
type dxgiModeDesc struct {
	Width            uint32
	Height           uint32
	RefreshRate      dxgiRational
	Format           uint32
	ScanlineOrdering uint32
	Scaling          uint32
}

// dxgiOutDuplDesc matches DXGI_OUTDUPL_DESC.
type dxgiOutDuplDesc struct {
	ModeDesc                   dxgiModeDesc
	Rotation                   uint32
	DesktopImageInSystemMemory int32
}

// dxgiOutDuplFrameInfo matches DXGI_OUTDUPL_FRAME_INFO.
type dxgiOutDuplFrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// dxgiMappedRect matches DXGI_MAPPED_RECT.
type dxgiMappedRect struct {
	Pitch int32
	Bits  *byte
}

func (d *dxgiOutputDesc) convert() OutputDesc {
	return OutputDesc{
		DeviceName:        d.DeviceName,
		Bounds:            Rect{Left: d.Left, Top: d.Top, Right: d.Right, Bottom: d.Bottom},
		AttachedToDesktop: boolOf(d.AttachedToDesktop),
		Rotation:          Rotation(d.Rotation),
		Monitor:           d.Monitor,
	}
}

func (d *dxgiOutDuplDesc) convert() DuplDesc {
	return DuplDesc{
		Width:                      d.ModeDesc.Width,
		Height:                     d.ModeDesc.Height,
		Format:                     d.ModeDesc.Format,
		Rotation:                   Rotation(d.Rotation),
		DesktopImageInSystemMemory: boolOf(d.DesktopImageInSystemMemory),
	}
}

func (f *dxgiOutDuplFrameInfo) convert() FrameInfo {
	return FrameInfo{
		LastPresentTime:           f.LastPresentTime,
		LastMouseUpdateTime:       f.LastMouseUpdateTime,
		AccumulatedFrames:         f.AccumulatedFrames,
		RectsCoalesced:            boolOf(f.RectsCoalesced),
		ProtectedContentMaskedOut: boolOf(f.ProtectedContentMaskedOut),
		TotalMetadataBufferSize:   f.TotalMetadataBufferSize,
	}
}

func (r dxgiMappedRect) convert() MappedRect {
	return MappedRect{Pitch: r.Pitch, Bits: r.Bits}
}
