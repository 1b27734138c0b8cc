//go:build !linux && !windows
// +build !linux,!windows

package aurora

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

var errUnsupportedOS = errors.Errorf("memory patching is not supported on %s", runtime.GOOS)

type unsupportedPlatform struct{}

func HostPlatform() Platform {
	return unsupportedPlatform{}
}

func ModulePlatform(module string) Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) QueryProtection(address uintptr) (Protection, error) {
	return ProtectNone, errUnsupportedOS
}

func (unsupportedPlatform) SetProtection(address uintptr, length int, protection Protection) (Protection, error) {
	return ProtectNone, errUnsupportedOS
}

func (unsupportedPlatform) ResolveModule() (Region, error) {
	return Region{}, errors.Wrap(ErrModuleNotFound, errUnsupportedOS.Error())
}

func (unsupportedPlatform) PageSize() int {
	return os.Getpagesize()
}
