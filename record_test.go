package aurora

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordByteSize(t *testing.T) {
	for _, tc := range []struct {
		text  string
		units int
	}{
		{"", 0},
		{"hytale.com", 10},
		{"https://account-data.", 21},
		{"héllo", 5},
		{"日本", 2},
		{"\U0001F600", 2}, // surrogate pair
		{strings.Repeat("a", RecordCapacity), RecordCapacity},
	} {
		record, err := NewStringRecord(tc.text)
		require.NoError(t, err, tc.text)
		assert.Equal(t, uint32(tc.units), record.Length, tc.text)
		assert.Equal(t, 4+tc.units*2, record.ByteSize(), tc.text)
		assert.Len(t, record.Bytes(), record.ByteSize(), tc.text)
	}
}

func TestRecordOverflowIsRejected(t *testing.T) {
	_, err := NewStringRecord(strings.Repeat("a", RecordCapacity+1))
	assert.True(t, errors.Is(err, ErrRecordOverflow), "got %v", err)

	assert.Panics(t, func() { MustStringRecord(strings.Repeat("b", RecordCapacity+1)) })
}

func TestRecordLayout(t *testing.T) {
	record := MustStringRecord("ab")
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 'a', 0x00, 'b', 0x00}, record.Bytes())
	assert.Equal(t, "ab", record.String())
}

func TestRecordMatches(t *testing.T) {
	record := MustStringRecord("tools")
	mem := append(record.Bytes(), 0xCC, 0xCC)
	assert.True(t, record.Matches(mem))
	assert.False(t, record.Matches(mem[:record.ByteSize()-1]))

	mem[5]++
	assert.False(t, record.Matches(mem))
}

func TestDecodeStringRecord(t *testing.T) {
	original := MustStringRecord("sessions")
	mem := append(original.Bytes(), 0xCC, 0xCC, 0xCC)

	decoded, err := DecodeStringRecord(mem)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.Equal(t, "sessions", decoded.String())

	_, err = DecodeStringRecord(mem[:3])
	assert.True(t, errors.Is(err, ErrShortBuffer), "got %v", err)

	_, err = DecodeStringRecord(mem[:original.ByteSize()-2])
	assert.True(t, errors.Is(err, ErrShortBuffer), "got %v", err)

	_, err = DecodeStringRecord([]byte{0x01, 0x01, 0x00, 0x00})
	assert.True(t, errors.Is(err, ErrRecordOverflow), "got %v", err)
}
