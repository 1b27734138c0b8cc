package aurora

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

// RecordCapacity is the number of UTF-16 code units a StringRecord can hold.
const RecordCapacity = 0x100

const (
	recordHeaderSize = 4
	codeUnitSize     = 2
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// StringRecord is a length-prefixed UTF-16 string as the target module lays
// it out in memory: a little-endian uint32 code unit count followed by the
// code units themselves. Only the first Length units of Data are meaningful.
type StringRecord struct {
	Length uint32
	Data   [RecordCapacity]uint16
}

// NewStringRecord encodes text as UTF-16LE. Text longer than RecordCapacity
// code units is rejected, never truncated.
func NewStringRecord(text string) (record StringRecord, err error) {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(text))
	if err != nil {
		err = errors.Wrapf(err, "encoding %q", text)
		return
	}
	units := len(encoded) / codeUnitSize
	if units > RecordCapacity {
		err = errors.Wrapf(ErrRecordOverflow, "%q is %d code units, capacity is %d", text, units, RecordCapacity)
		return
	}
	record.Length = uint32(units)
	for i := 0; i < units; i++ {
		record.Data[i] = binary.LittleEndian.Uint16(encoded[i*codeUnitSize:])
	}
	return
}

// MustStringRecord is NewStringRecord for compiled-in literals. It panics on
// overflow.
func MustStringRecord(text string) StringRecord {
	record, err := NewStringRecord(text)
	if err != nil {
		panic(err)
	}
	return record
}

// ByteSize is the exact number of bytes the record occupies in memory. It is
// both the comparison length and the overwrite length.
func (r StringRecord) ByteSize() int {
	return recordHeaderSize + int(r.Length)*codeUnitSize
}

// Bytes serializes the header and the meaningful prefix of Data, and nothing
// past it.
func (r StringRecord) Bytes() []byte {
	buf := make([]byte, r.ByteSize())
	binary.LittleEndian.PutUint32(buf, r.Length)
	for i := 0; i < int(r.Length); i++ {
		binary.LittleEndian.PutUint16(buf[recordHeaderSize+i*codeUnitSize:], r.Data[i])
	}
	return buf
}

// Matches reports whether mem begins with exactly this record's bytes.
func (r StringRecord) Matches(mem []byte) bool {
	if len(mem) < r.ByteSize() {
		return false
	}
	return bytes.Equal(mem[:r.ByteSize()], r.Bytes())
}

// String decodes the record back to text.
func (r StringRecord) String() string {
	raw := r.Bytes()[recordHeaderSize:]
	text, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(text)
}

// DecodeStringRecord reads a record from the start of buf.
func DecodeStringRecord(buf []byte) (record StringRecord, err error) {
	if len(buf) < recordHeaderSize {
		err = errors.Wrapf(ErrShortBuffer, "need %d header bytes, have %d", recordHeaderSize, len(buf))
		return
	}
	length := binary.LittleEndian.Uint32(buf)
	if length > RecordCapacity {
		err = errors.Wrapf(ErrRecordOverflow, "length field is %d, capacity is %d", length, RecordCapacity)
		return
	}
	record.Length = length
	if len(buf) < record.ByteSize() {
		err = errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", record.ByteSize(), len(buf))
		record = StringRecord{}
		return
	}
	for i := 0; i < int(length); i++ {
		record.Data[i] = binary.LittleEndian.Uint16(buf[recordHeaderSize+i*codeUnitSize:])
	}
	return
}
