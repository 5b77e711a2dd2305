package dxgi

import "unicode/utf16"

// Display is an owned handle to one duplication-capable output. It keeps a
// shared reference to the adapter the output belongs to.
type Display struct {
	backend Backend
	output  ref[DuplicableOutput]
	adapter ref[Adapter]
	desc    OutputDesc
}

func (d *Display) Width() int { return d.desc.Bounds.Dx() }
func (d *Display) Height() int { return d.desc.Bounds.Dy() }

func (d *Display) Bounds() Rect { return d.desc.Bounds }
func (d *Display) Rotation() Rotation { return d.desc.Rotation }
func (d *Display) AttachedToDesktop() bool { return d.desc.AttachedToDesktop }

// Origin is the top-left corner of the display in desktop coordinates.
func (d *Display) Origin() (x, y int) {
	return int(d.desc.Bounds.Left), int(d.desc.Bounds.Top)
}

// IsPrimary reports whether the display sits at the desktop origin.
func (d *Display) IsPrimary() bool {
	return d.desc.Bounds.Left == 0 && d.desc.Bounds.Top == 0
}

// NameUTF16 returns the device name up to, not including, the first NUL.
func (d *Display) NameUTF16() []uint16 {
	n := 0
	for n < len(d.desc.DeviceName) && d.desc.DeviceName[n] != 0 {
		n++
	}
	return d.desc.DeviceName[:n:n]
}

// Name returns the device name, e.g. `\\.\DISPLAY1`.
func (d *Display) Name() string {
	return string(utf16.Decode(d.NameUTF16()))
}

// Close releases the output and the display's adapter reference.
func (d *Display) Close() {
	d.output.release()
	d.adapter.release()
}

func (d *Display) closed() bool { return !d.output.valid() }
