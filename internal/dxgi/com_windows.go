//go:build windows

package dxgi

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	dxgiDLL  = windows.NewLazySystemDLL("dxgi.dll")
	d3d11DLL = windows.NewLazySystemDLL("d3d11.dll")

	procCreateDXGIFactory1 = dxgiDLL.NewProc("CreateDXGIFactory1")
	procD3D11CreateDevice  = d3d11DLL.NewProc("D3D11CreateDevice")
)

var (
	iidIDXGIFactory1   = ole.NewGUID("{770aae78-f26f-4dba-a829-253c83d1b387}")
	iidIDXGIOutput1    = ole.NewGUID("{00cddea8-939b-4b83-a340-a685226666cc}")
	iidIDXGISurface    = ole.NewGUID("{cafcb56c-6ac3-4889-bf47-9e23bbd260ec}")
	iidID3D11Texture2D = ole.NewGUID("{6f15aaf2-d208-4e89-9ab4-489535d34f9c}")
)

// COM vtable indices. IUnknown takes 0-2, IDXGIObject 3-6 and
// ID3D11DeviceChild 3-6.
const (
	vtblFactory1EnumAdapters1 = 12
	vtblAdapterEnumOutputs    = 7
	vtblOutputGetDesc         = 7
	vtblOutput1DuplicateOut   = 22

	vtblDuplGetDesc             = 7
	vtblDuplAcquireNextFrame    = 8
	vtblDuplMapDesktopSurface   = 12
	vtblDuplUnMapDesktopSurface = 13
	vtblDuplReleaseFrame        = 14

	vtblDeviceCreateTexture2D = 5
	vtblCtxCopyResource       = 47

	vtblResourceSetEvictionPriority = 8
	vtblTexture2DGetDesc            = 10

	vtblSurfaceMap   = 9
	vtblSurfaceUnmap = 10
)

const (
	d3dDriverTypeUnknown = 0
	d3d11SDKVersion      = 7
	dxgiMapRead          = 1
)

// comObject is a raw COM interface pointer.
type comObject uintptr

func (o comObject) unknown() *ole.IUnknown {
	return (*ole.IUnknown)(unsafe.Pointer(o))
}

func (o comObject) AddRef() { o.unknown().AddRef() }

func (o comObject) Release() { o.unknown().Release() }

func (o comObject) method(idx int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(o))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// call invokes an HRESULT-returning method. Anything but S_OK, including
// success codes such as S_FALSE, is reported as a Status.
func (o comObject) call(idx int, args ...uintptr) error {
	hr, _, _ := syscall.SyscallN(o.method(idx), append([]uintptr{uintptr(o)}, args...)...)
	return procStatus(hr)
}

// callVoid invokes a method with no return value.
func (o comObject) callVoid(idx int, args ...uintptr) {
	syscall.SyscallN(o.method(idx), append([]uintptr{uintptr(o)}, args...)...)
}

func (o comObject) query(iid *ole.GUID) (comObject, error) {
	d, err := o.unknown().QueryInterface(iid)
	if err != nil {
		return 0, err
	}
	return comObject(unsafe.Pointer(d)), nil
}

func procStatus(hr uintptr) error {
	if st := Status(uint32(hr)); st != StatusOK {
		return st
	}
	return nil
}

func boolOf(b int32) bool { return b != 0 }
