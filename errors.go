package aurora

import (
	"github.com/pkg/errors"
)

var (
	// A literal or decoded record exceeds RecordCapacity code units.
	ErrRecordOverflow = errors.New("string record exceeds capacity")

	// A buffer is too short to hold the record it claims to contain.
	ErrShortBuffer = errors.New("buffer too short for string record")

	// A substitution's replacement serializes larger than the record it
	// replaces, so writing it would overrun into adjacent memory.
	ErrSubstitutionGrows = errors.New("replacement record is larger than original")

	// Memory protection could not be queried or changed; the write was
	// skipped.
	ErrProtectionChange = errors.New("could not make memory writable")

	// The write happened but the previous protection could not be put back.
	ErrProtectionRestore = errors.New("could not restore memory protection")

	// The jump scan reached the end of the module before finding every site.
	ErrScanOutOfBounds = errors.New("jump scan reached end of module")

	// The jump scan hit bytes that do not decode as an instruction.
	ErrBadInstruction = errors.New("undecodable instruction in jump scan")

	// The target module could not be located in the current process.
	ErrModuleNotFound = errors.New("module not found")
)
