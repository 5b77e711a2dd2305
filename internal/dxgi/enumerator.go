package dxgi

import (
	"errors"
	"iter"
)

// ErrNoDisplay is returned when enumeration yields no usable display.
var ErrNoDisplay = errors.New("dxgi: no duplication-capable display found")

// Displays is a forward-only, non-restartable sequence of displays,
// ordered by adapter index then output index. Construct a new one to
// enumerate again.
//
// displayIndex is only meaningful against the current adapter; it resets
// whenever advanceAdapter moves on. adapterIndex is the next adapter to
// try and only ever grows.
type Displays struct {
	backend      Backend
	factory      ref[Factory]
	adapter      ref[Adapter]
	adapterIndex uint32
	displayIndex uint32
}

// NewDisplays opens a factory on b and positions at the first adapter.
// When the machine has no adapter the sequence is empty, not an error.
func NewDisplays(b Backend) (*Displays, error) {
	f, err := b.CreateFactory()
	if err != nil {
		return nil, translate("CreateDXGIFactory1", err)
	}
	d := &Displays{backend: b, factory: own(f)}
	if !d.factory.valid() {
		return nil, &Error{Op: "CreateDXGIFactory1", Kind: Other, Err: errors.New("backend returned no factory")}
	}
	d.advanceAdapter()
	return d, nil
}

// Next returns the next display, or false once every adapter is exhausted.
// The caller owns the returned Display and must Close it.
func (d *Displays) Next() (*Display, bool) {
	for d.adapter.valid() {
		out, err := d.adapter.get().EnumOutput(d.displayIndex)
		if err != nil || isNil(out) {
			if err != nil && !errors.Is(err, StatusNotFound) {
				log.Warn("output enumeration failed, skipping adapter",
					"adapter", d.adapterIndex-1, "output", d.displayIndex, "error", err)
			}
			d.advanceAdapter()
			continue
		}
		index := d.displayIndex
		d.displayIndex++
		if disp, ok := d.bind(out, index); ok {
			return disp, true
		}
	}
	return nil, false
}

// advanceAdapter is the only adapter transition: it drops the current
// adapter, resets the display index and fetches the adapter at
// adapterIndex. When the factory has none left the current adapter stays
// empty, Next never calls back here, and the sequence is finished for good.
func (d *Displays) advanceAdapter() {
	d.adapter.release()
	d.displayIndex = 0
	if !d.factory.valid() {
		return
	}

	a, err := d.factory.get().EnumAdapter(d.adapterIndex)
	d.adapterIndex++
	if err != nil && !errors.Is(err, StatusNotFound) {
		log.Warn("adapter enumeration failed", "adapter", d.adapterIndex-1, "error", err)
	}
	if err != nil {
		// Some backends hand back a partial object alongside the error.
		if !isNil(a) {
			a.Release()
		}
		return
	}
	d.adapter = own(a)
}

// bind consumes the generic output handle. Outputs whose descriptor cannot
// be read or that do not support duplication are skipped on their own; the
// adapter is not abandoned, so capable outputs after an incapable one on the
// same adapter are still yielded.
func (d *Displays) bind(out Output, index uint32) (*Display, bool) {
	generic := own(out)
	defer generic.release()

	desc, err := out.Desc()
	if err != nil {
		log.Debug("skipping output without descriptor",
			"adapter", d.adapterIndex-1, "output", index, "error", err)
		return nil, false
	}
	up, err := out.Upgrade()
	if err != nil || isNil(up) {
		log.Debug("skipping output without duplication support",
			"adapter", d.adapterIndex-1, "output", index, "error", err)
		return nil, false
	}

	return &Display{
		backend: d.backend,
		output:  own(up),
		adapter: d.adapter.share(),
		desc:    desc,
	}, true
}

// All adapts the sequence to a range-over-func iterator. Displays the
// loop body does not keep must be closed by it.
func (d *Displays) All() iter.Seq[*Display] {
	return func(yield func(*Display) bool) {
		for {
			disp, ok := d.Next()
			if !ok || !yield(disp) {
				return
			}
		}
	}
}

// Close releases the factory and current adapter. Displays already
// returned stay valid.
func (d *Displays) Close() {
	d.adapter.release()
	d.factory.release()
}

// Collect enumerates every display on b.
func Collect(b Backend) ([]*Display, error) {
	ds, err := NewDisplays(b)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	var out []*Display
	for disp := range ds.All() {
		out = append(out, disp)
	}
	return out, nil
}

// Primary returns the display at the desktop origin, or the first display
// when none is. All other displays are released.
func Primary(b Backend) (*Display, error) {
	all, err := Collect(b)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoDisplay
	}
	pick := 0
	for i, d := range all {
		if d.IsPrimary() {
			pick = i
			break
		}
	}
	for i, d := range all {
		if i != pick {
			d.Close()
		}
	}
	return all[pick], nil
}

// At returns the display at position index in enumeration order, releasing
// the ones before it.
func At(b Backend, index int) (*Display, error) {
	ds, err := NewDisplays(b)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	i := 0
	for disp := range ds.All() {
		if i == index {
			return disp, nil
		}
		disp.Close()
		i++
	}
	return nil, ErrNoDisplay
}
