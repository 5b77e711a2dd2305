package session

import (
	"fmt"
	"time"

	"github.com/breeze-rmm/scrap/internal/dxgi"
)

// Source yields borrowed frame views. *dxgi.Capturer satisfies it.
type Source interface {
	Frame(timeout time.Duration) ([]byte, error)
	Rows() int
	LastFrameInfo() dxgi.FrameInfo
	Close() error
}

// DisplayInfo describes the display a Source is bound to.
type DisplayInfo struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Bounds   dxgi.Rect     `json:"bounds"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Rotation dxgi.Rotation `json:"rotation"`
	Fastlane bool          `json:"fastlane"`
}

// Opener binds a fresh Source. It is called again after the duplication
// session is lost.
type Opener func() (Source, DisplayInfo, error)

// DXGIOpener enumerates displays on b and starts a Capturer on the one at
// index. Enumeration is repeated on every call so a rebuilt session picks
// up mode changes.
func DXGIOpener(b dxgi.Backend, index int) Opener {
	return func() (Source, DisplayInfo, error) {
		d, err := dxgi.At(b, index)
		if err != nil {
			return nil, DisplayInfo{}, fmt.Errorf("select display %d: %w", index, err)
		}
		defer d.Close()

		c, err := dxgi.NewCapturer(d)
		if err != nil {
			return nil, DisplayInfo{}, fmt.Errorf("start capture on %s: %w", d.Name(), err)
		}
		return c, DisplayInfo{
			Index:    index,
			Name:     d.Name(),
			Bounds:   d.Bounds(),
			Width:    d.Width(),
			Height:   d.Height(),
			Rotation: d.Rotation(),
			Fastlane: c.Fastlane(),
		}, nil
	}
}
