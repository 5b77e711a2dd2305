package session

import (
	"hash/crc32"

	"github.com/breeze-rmm/scrap/internal/dxgi"
)

// frameDiffer suppresses frames whose pixels did not change.
type frameDiffer struct {
	lastHash uint32
	hasLast  bool
}

// changed reports whether pix differs from the last frame that passed.
// A frame with no accumulated desktop updates only moved the pointer and is
// treated as unchanged without hashing.
func (d *frameDiffer) changed(info dxgi.FrameInfo, pix []byte) bool {
	if d.hasLast && info.AccumulatedFrames == 0 {
		return false
	}
	h := crc32.ChecksumIEEE(pix)
	if d.hasLast && h == d.lastHash {
		return false
	}
	d.lastHash, d.hasLast = h, true
	return true
}

func (d *frameDiffer) reset() { d.hasLast = false }
