package aurora

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Encoding selects which compiler's code layout the instruction signature
// targets. The online-mode and singleplayer checks compile to
//
//	lea     rcx, [rsp+...]
//	call    ...
//	cmp     byte ptr [rsp+...], 0
//	jz      ...
//	mov     rax, [rbx+...]
//	mov     rax, [rax+...]
//	cmp     qword ptr [rax+...], 0
//	jz      ...
//
// with a slightly different gap between the lea and the first jz per
// toolchain.
type Encoding int

const (
	EncodingLinuxAMD64 Encoding = iota
	EncodingWindowsAMD64
)

// JumpPatchSize is the length of a jz rel32 instruction.
const JumpPatchSize = 6

// NOP is the x86 no-operation opcode used to fill neutralized jumps.
const NOP = 0x90

var jzOpcode = [2]byte{0x0F, 0x84}

// A signature byte of -1 matches anything.
type signature []int

// 48 8D ?? ?? E8 ?? ?? ?? 00 80 ?? ?? 00 0F 84
var linuxSignature = signature{0x48, 0x8D, -1, -1, 0xE8, -1, -1, -1, 0x00, 0x80, -1, -1, 0x00, 0x0F, 0x84}

// 48 8D ?? ?? ?? E8 ?? ?? ?? ?? 80 ?? ?? ?? 00 0F 84
var windowsSignature = signature{0x48, 0x8D, -1, -1, -1, 0xE8, -1, -1, -1, -1, 0x80, -1, -1, -1, 0x00, 0x0F, 0x84}

// HostEncoding returns the encoding matching the OS this binary was built
// for.
func HostEncoding() Encoding {
	if runtime.GOOS == "windows" {
		return EncodingWindowsAMD64
	}
	return EncodingLinuxAMD64
}

func (e Encoding) signature() signature {
	if e == EncodingWindowsAMD64 {
		return windowsSignature
	}
	return linuxSignature
}

// SignatureLength is the number of bytes Match inspects.
func (e Encoding) SignatureLength() int {
	return len(e.signature())
}

// JumpOffset is the offset of the first jz opcode within the signature.
func (e Encoding) JumpOffset() int {
	return len(e.signature()) - len(jzOpcode)
}

func (e Encoding) String() string {
	switch e {
	case EncodingLinuxAMD64:
		return "linux/amd64"
	case EncodingWindowsAMD64:
		return "windows/amd64"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Match reports whether the instruction signature starts at mem[offset].
func (e Encoding) Match(mem []byte, offset int) bool {
	sig := e.signature()
	if offset < 0 || offset+len(sig) > len(mem) {
		return false
	}
	for i, b := range sig {
		if b >= 0 && mem[offset+i] != byte(b) {
			return false
		}
	}
	return true
}

// maxInstructionLength is the longest x86 instruction encoding.
const maxInstructionLength = 15

func isJumpSite(mem []byte, offset int) bool {
	return offset+JumpPatchSize <= len(mem) &&
		mem[offset] == jzOpcode[0] && mem[offset+1] == jzOpcode[1]
}

// findJumps decodes instructions forward from offset, which must be an
// instruction boundary, and returns the offsets of the first count jz rel32
// instructions. Stepping whole instructions means a 0F 84 inside a
// displacement or immediate is never taken for a jump. The walk never reads
// past the end of mem.
func findJumps(mem []byte, offset int, count int) (sites []int, err error) {
	for i := offset; i < len(mem) && len(sites) < count; {
		inst, decodeErr := x86asm.Decode(mem[i:], 64)
		if decodeErr != nil {
			if len(mem)-i < maxInstructionLength {
				break
			}
			err = errors.Wrapf(ErrBadInstruction, "offset 0x%x: %v", i, decodeErr)
			return
		}
		if inst.Op == x86asm.JE && inst.Len == JumpPatchSize && isJumpSite(mem, i) {
			sites = append(sites, i)
		}
		i += inst.Len
	}
	if len(sites) < count {
		err = errors.Wrapf(ErrScanOutOfBounds, "found %d of %d jumps after offset 0x%x", len(sites), count, offset)
	}
	return
}
