//go:build !windows

package dxgi

// NewBackend reports ErrNotSupported outside Windows.
func NewBackend() (Backend, error) {
	return nil, ErrNotSupported
}
