//go:build linux
// +build linux

package aurora

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

var protToOS = []int{
	ProtectNone: unix.PROT_NONE,
	ProtectR:    unix.PROT_READ,
	ProtectW:    unix.PROT_WRITE,
	ProtectX:    unix.PROT_EXEC,
	ProtectRW:   unix.PROT_READ | unix.PROT_WRITE,
	ProtectRX:   unix.PROT_READ | unix.PROT_EXEC,
	ProtectWX:   unix.PROT_WRITE | unix.PROT_EXEC,
	ProtectRWX:  unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC,
}

var sysPageSize = unix.Getpagesize()
var pageBeginMask = ^uintptr(sysPageSize - 1)

type linuxPlatform struct {
	// Path of the mapped file to patch. Empty means the running executable.
	module string
}

// HostPlatform returns the platform services for the main executable of the
// current process.
func HostPlatform() Platform {
	return &linuxPlatform{}
}

// ModulePlatform returns the platform services for a shared object loaded in
// the current process, matched by base name or full path.
func ModulePlatform(module string) Platform {
	return &linuxPlatform{module: module}
}

func (p *linuxPlatform) PageSize() int {
	return sysPageSize
}

func (p *linuxPlatform) maps() ([]*procfs.ProcMap, error) {
	self, err := procfs.Self()
	if err != nil {
		return nil, errors.Wrap(err, "opening /proc/self")
	}
	return self.ProcMaps()
}

func permsToProtection(perms *procfs.ProcMapPermissions) (protection Protection) {
	if perms == nil {
		return
	}
	if perms.Read {
		protection |= ProtectR
	}
	if perms.Write {
		protection |= ProtectW
	}
	if perms.Execute {
		protection |= ProtectX
	}
	return
}

func (p *linuxPlatform) QueryProtection(address uintptr) (Protection, error) {
	maps, err := p.maps()
	if err != nil {
		return ProtectNone, err
	}
	for _, m := range maps {
		if address >= m.StartAddr && address < m.EndAddr {
			return permsToProtection(m.Perms), nil
		}
	}
	return ProtectNone, errors.Errorf("0x%x is not mapped", address)
}

func (p *linuxPlatform) SetProtection(address uintptr, length int, protection Protection) (old Protection, err error) {
	if old, err = p.QueryProtection(address); err != nil {
		return
	}
	pageStart := address & pageBeginMask
	end := (address + uintptr(length) + uintptr(sysPageSize) - 1) & pageBeginMask
	page := SliceAtAddress(pageStart, int(end-pageStart))
	err = unix.Mprotect(page, protToOS[protection&ProtectRWX])
	return
}

// moduleMatcher returns a predicate selecting the mappings of the module.
func (p *linuxPlatform) moduleMatcher() (func(path string) bool, error) {
	if p.module != "" {
		return func(path string) bool {
			return path != "" && (path == p.module || filepath.Base(path) == p.module)
		}, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "resolving executable path")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return func(path string) bool { return path == exe }, nil
}

// ResolveModule returns the contiguous readable run of mappings starting at
// the module's lowest mapping. Pages past a gap or an unreadable mapping are
// excluded so the whole region can be read without faulting.
func (p *linuxPlatform) ResolveModule() (region Region, err error) {
	isModule, err := p.moduleMatcher()
	if err != nil {
		return
	}
	maps, err := p.maps()
	if err != nil {
		return
	}

	var end uintptr
	for _, m := range maps {
		matches := isModule(m.Pathname)
		if region.Start == 0 {
			if matches && m.Perms != nil && m.Perms.Read {
				region.Start = m.StartAddr
				end = m.EndAddr
			}
			continue
		}
		if !matches || m.StartAddr != end || m.Perms == nil || !m.Perms.Read {
			break
		}
		end = m.EndAddr
	}

	if region.Start == 0 {
		name := p.module
		if name == "" {
			name = "main executable"
		}
		err = errors.Wrapf(ErrModuleNotFound, "%s in /proc/self/maps", name)
		return
	}
	region.Size = int(end - region.Start)
	return
}
