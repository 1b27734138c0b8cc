package aurora

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const fakePageSize = 64

type setCall struct {
	address    uintptr
	length     int
	protection Protection
}

// fakePlatform simulates page protections over a byte slice. Every call
// into it checks that bytes changed since the previous call lie on pages
// that were writable at the time.
type fakePlatform struct {
	t      *testing.T
	base   uintptr
	origin uintptr // start of the page holding base
	mem    []byte
	shadow []byte
	prot   []Protection

	failSet     map[uintptr]bool
	failQuery   bool
	failRestore bool
	calls       []setCall
}

func newFakePlatform(t *testing.T, mem []byte) *fakePlatform {
	base := GetSliceAddr(mem)
	origin := base &^ (fakePageSize - 1)
	f := &fakePlatform{
		t:       t,
		base:    base,
		origin:  origin,
		mem:     mem,
		shadow:  append([]byte(nil), mem...),
		prot:    make([]Protection, (int(base-origin)+len(mem)+fakePageSize-1)/fakePageSize),
		failSet: map[uintptr]bool{},
	}
	for i := range f.prot {
		f.prot[i] = ProtectRX
	}
	return f
}

func (f *fakePlatform) page(address uintptr) (int, error) {
	if address < f.base || address >= f.base+uintptr(len(f.mem)) {
		return 0, errors.Errorf("0x%x is not mapped", address)
	}
	return int(address-f.origin) / fakePageSize, nil
}

func (f *fakePlatform) check() {
	f.t.Helper()
	for i := range f.mem {
		page := int(f.base+uintptr(i)-f.origin) / fakePageSize
		if f.mem[i] != f.shadow[i] && !f.prot[page].Writable() {
			f.t.Errorf("byte at offset %d written while page was %v", i, f.prot[page])
		}
	}
	copy(f.shadow, f.mem)
}

func (f *fakePlatform) QueryProtection(address uintptr) (Protection, error) {
	f.check()
	if f.failQuery {
		return ProtectNone, errors.New("query refused")
	}
	page, err := f.page(address)
	if err != nil {
		return ProtectNone, err
	}
	return f.prot[page], nil
}

func (f *fakePlatform) SetProtection(address uintptr, length int, protection Protection) (Protection, error) {
	f.check()
	f.calls = append(f.calls, setCall{address, length, protection})
	if protection == ProtectRWX && f.failSet[address] {
		return ProtectNone, errors.New("mprotect refused")
	}
	if protection != ProtectRWX && f.failRestore {
		return ProtectNone, errors.New("restore refused")
	}
	first, err := f.page(address)
	if err != nil {
		return ProtectNone, err
	}
	last, err := f.page(address + uintptr(length) - 1)
	if err != nil {
		return ProtectNone, err
	}
	old := f.prot[first]
	for i := first; i <= last; i++ {
		f.prot[i] = protection
	}
	return old, nil
}

func (f *fakePlatform) PageSize() int {
	return fakePageSize
}

func (f *fakePlatform) ResolveModule() (Region, error) {
	return Region{Start: f.base, Size: len(f.mem)}, nil
}

func (f *fakePlatform) assertRestored() {
	f.t.Helper()
	f.check()
	for i, p := range f.prot {
		if p != ProtectRX {
			f.t.Errorf("page %d left as %v", i, p)
		}
	}
}

// newModule returns size bytes of int3 filler, which never matches a record
// or a jump. The first byte starts a fake page.
func newModule(size int) []byte {
	buf := bytes.Repeat([]byte{0xCC}, size+fakePageSize)
	skip := int(-GetSliceAddr(buf) & (fakePageSize - 1))
	return buf[skip : skip+size : skip+size]
}

func newTestLogger() (logrus.FieldLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
