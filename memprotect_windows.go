//go:build windows
// +build windows

package aurora

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// https://docs.microsoft.com/en-us/windows/win32/memory/memory-protection-constants
var protToOS = []uint32{
	ProtectNone: windows.PAGE_NOACCESS,
	ProtectR:    windows.PAGE_READONLY,
	ProtectW:    windows.PAGE_READWRITE,
	ProtectX:    windows.PAGE_EXECUTE,
	ProtectRW:   windows.PAGE_READWRITE,
	ProtectRX:   windows.PAGE_EXECUTE_READ,
	ProtectWX:   windows.PAGE_EXECUTE_READWRITE,
	ProtectRWX:  windows.PAGE_EXECUTE_READWRITE,
}

var osToProt = map[uint32]Protection{
	windows.PAGE_NOACCESS:          ProtectNone,
	windows.PAGE_READONLY:          ProtectR,
	windows.PAGE_READWRITE:         ProtectRW,
	windows.PAGE_WRITECOPY:         ProtectRW,
	windows.PAGE_EXECUTE:           ProtectX,
	windows.PAGE_EXECUTE_READ:      ProtectRX,
	windows.PAGE_EXECUTE_READWRITE: ProtectRWX,
	windows.PAGE_EXECUTE_WRITECOPY: ProtectRWX,
}

// The raw OS value rides above the portable bits so that modifiers such as
// PAGE_GUARD survive a restore.
func fromOSProtection(raw uint32) Protection {
	return osToProt[raw&0xff] | Protection(raw)<<8
}

func toOSProtection(protection Protection) uint32 {
	if raw := uint32(protection >> 8); raw != 0 {
		return raw
	}
	return protToOS[protection&ProtectRWX]
}

type windowsPlatform struct {
	module string
}

// HostPlatform returns the platform services for the main executable of the
// current process.
func HostPlatform() Platform {
	return &windowsPlatform{}
}

// ModulePlatform returns the platform services for a DLL loaded in the
// current process.
func ModulePlatform(module string) Platform {
	return &windowsPlatform{module: module}
}

func (p *windowsPlatform) PageSize() int {
	return windows.Getpagesize()
}

func (p *windowsPlatform) QueryProtection(address uintptr) (Protection, error) {
	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(address, &info, unsafe.Sizeof(info)); err != nil {
		return ProtectNone, errors.Wrapf(err, "VirtualQuery 0x%x", address)
	}
	return fromOSProtection(info.Protect), nil
}

// https://docs.microsoft.com/en-us/windows/win32/api/memoryapi/nf-memoryapi-virtualprotect
func (p *windowsPlatform) SetProtection(address uintptr, length int, protection Protection) (old Protection, err error) {
	var oldProtection uint32
	if err = windows.VirtualProtect(address, uintptr(length), toOSProtection(protection), &oldProtection); err != nil {
		err = errors.Wrapf(err, "VirtualProtect 0x%x", address)
		return
	}
	old = fromOSProtection(oldProtection)
	return
}

func (p *windowsPlatform) ResolveModule() (region Region, err error) {
	var name *uint16
	if p.module != "" {
		if name, err = windows.UTF16PtrFromString(p.module); err != nil {
			return
		}
	}

	var module windows.Handle
	if err = windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, name, &module); err != nil {
		err = errors.Wrapf(ErrModuleNotFound, "%q: %v", p.module, err)
		return
	}

	var info windows.ModuleInfo
	if err = windows.GetModuleInformation(windows.CurrentProcess(), module, &info, uint32(unsafe.Sizeof(info))); err != nil {
		err = errors.Wrap(err, "GetModuleInformation")
		return
	}
	region.Start = info.BaseOfDll
	region.Size = int(info.SizeOfImage)
	return
}
