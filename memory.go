package aurora

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Protection is a snapshot of a memory range's page permissions. The low
// bits hold the portable R/W/X set; anything above is OS specific and is
// carried through unchanged so that a restore puts back exactly what was
// there.
type Protection int

const (
	ProtectNone Protection = 0
	ProtectR    Protection = 1
	ProtectW    Protection = 2
	ProtectX    Protection = 4
	ProtectRW              = ProtectR | ProtectW
	ProtectRX              = ProtectR | ProtectX
	ProtectWX              = ProtectW | ProtectX
	ProtectRWX             = ProtectR | ProtectW | ProtectX
)

// Writable reports whether the W bit is set.
func (p Protection) Writable() bool {
	return p&ProtectW != 0
}

// Region is the address window of a loaded module.
type Region struct {
	Start uintptr
	Size  int
}

// End is the first address past the region.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Size)
}

// Platform is the set of OS services the patcher needs. Implementations for
// the host OS are returned by HostPlatform.
type Platform interface {
	// QueryProtection returns the current protection of the page holding
	// address.
	QueryProtection(address uintptr) (Protection, error)

	// SetProtection changes the protection of every page overlapping
	// [address, address+length) and returns the previous protection.
	SetProtection(address uintptr, length int, protection Protection) (old Protection, err error)

	// ResolveModule returns the address window of the module to patch.
	ResolveModule() (Region, error)

	// PageSize is the granularity protections are tracked at. Must be a
	// power of two.
	PageSize() int
}

// GetSliceAddr returns the address of a slice's first element.
func GetSliceAddr(slice []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(slice)))
}

// SliceAtAddress views length bytes of process memory at address.
func SliceAtAddress(address uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(address)), length)
}

type pageProtection struct {
	address    uintptr
	length     int
	protection Protection
}

// Unprotect a memory region, perform an operation, and then restore the old
// protection.
//
// Each page the region touches is queried and unprotected on its own, and
// gets its own protection back afterwards. The operation only runs once
// every page was made writable. Pages that could not be changed are never
// restored.
func applyToProtectedMemory(platform Platform, address uintptr, length int, operation func()) (err error) {
	var changed []pageProtection
	restore := func() (err error) {
		for _, page := range changed {
			if _, e := platform.SetProtection(page.address, page.length, page.protection); e != nil && err == nil {
				err = errors.Wrapf(ErrProtectionRestore, "0x%x+%d: %v", page.address, page.length, e)
			}
		}
		return
	}

	pageSize := uintptr(platform.PageSize())
	end := address + uintptr(length)
	for start := address; start < end; {
		next := (start &^ (pageSize - 1)) + pageSize
		if next > end {
			next = end
		}
		page := pageProtection{address: start, length: int(next - start)}

		if page.protection, err = platform.QueryProtection(start); err != nil {
			restore()
			return errors.Wrapf(ErrProtectionChange, "query 0x%x: %v", start, err)
		}
		if _, err = platform.SetProtection(start, page.length, ProtectRWX); err != nil {
			restore()
			return errors.Wrapf(ErrProtectionChange, "0x%x+%d: %v", start, page.length, err)
		}
		changed = append(changed, page)
		start = next
	}

	operation()

	return restore()
}
