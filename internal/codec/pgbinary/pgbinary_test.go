package pgbinary

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	raw, err := id.MarshalBinary()
	require.NoError(t, err)

	got, err := UUID(raw)
	require.NoError(t, err)
	assert.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", got)
}

func TestUUIDShortBufferFails(t *testing.T) {
	_, err := UUID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestBytea(t *testing.T) {
	assert.Equal(t, `\xdeadbeef`, Bytea([]byte{0xde, 0xad, 0xbe, 0xef}))
	assert.Equal(t, `\x`, Bytea(nil))
}

func TestMacaddr(t *testing.T) {
	got, err := Macaddr([]byte{0x08, 0x00, 0x2b, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, "08:00:2b:01:02:03", got)
}

func TestMacaddr8(t *testing.T) {
	got, err := Macaddr([]byte{0x08, 0x00, 0x2b, 0xff, 0xfe, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, "08:00:2b:ff:fe:01:02:03", got)
}

func encodeInetV4(addr [4]byte, bits byte, isCidr bool) []byte {
	cidr := byte(0)
	if isCidr {
		cidr = 1
	}
	return append([]byte{2, bits, cidr, 4}, addr[:]...)
}

func TestInetV4WithMask(t *testing.T) {
	raw := encodeInetV4([4]byte{192, 168, 1, 1}, 8, true)
	got, err := Inet(raw)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1/8", got)
}

func TestInetV4WithoutExplicitMaskOmitsSuffix(t *testing.T) {
	raw := encodeInetV4([4]byte{10, 0, 0, 1}, 32, false)
	got, err := Inet(raw)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got)
}

func TestInetV6Collapse(t *testing.T) {
	addr := make([]byte, 16)
	// 2001:db8::1
	binary.BigEndian.PutUint16(addr[0:2], 0x2001)
	binary.BigEndian.PutUint16(addr[2:4], 0x0db8)
	binary.BigEndian.PutUint16(addr[14:16], 0x0001)
	raw := append([]byte{3, 128, 0, 16}, addr...)
	got, err := Inet(raw)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", got)
}

func TestTimestampEpoch(t *testing.T) {
	b := make([]byte, 8)
	// 2024-01-15T10:30:00Z expressed as microseconds since 2000-01-01.
	target := pgEpoch.AddDate(24, 0, 14).Add(10*3600*1e9 + 30*60*1e9)
	usec := target.Sub(pgEpoch).Microseconds()
	binary.BigEndian.PutUint64(b, uint64(usec))

	got, err := Timestamp(b, false)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00", got)
}

func TestDate(t *testing.T) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(8780)) // days since 2000-01-01
	got, err := Date(b)
	require.NoError(t, err)
	assert.Equal(t, pgEpoch.AddDate(0, 0, 8780).Format("2006-01-02"), got)
}

func TestTimeTZPositiveOffset(t *testing.T) {
	b := make([]byte, 12)
	usec := int64((10*3600 + 30*60) * 1_000_000)
	binary.BigEndian.PutUint64(b[0:8], uint64(usec))
	offsetSec := int32(-9 * 3600)
	binary.BigEndian.PutUint32(b[8:12], uint32(offsetSec)) // west-of-UTC seconds; JST is east 9
	got, err := TimeTZ(b)
	require.NoError(t, err)
	assert.Equal(t, "10:30:00+09", got)
}

func TestIntervalComponents(t *testing.T) {
	b := make([]byte, 16)
	usec := int64((2*3600 + 30*60) * 1_000_000)
	binary.BigEndian.PutUint64(b[0:8], uint64(usec))
	binary.BigEndian.PutUint32(b[8:12], uint32(3))  // days
	binary.BigEndian.PutUint32(b[12:16], uint32(14)) // months: 1 year 2 months
	got, err := Interval(b)
	require.NoError(t, err)
	assert.Equal(t, "1 year 2 mons 3 days 02:30:00", got)
}

func TestIntervalAllZeroIsClockOnly(t *testing.T) {
	b := make([]byte, 16)
	got, err := Interval(b)
	require.NoError(t, err)
	assert.Equal(t, "00:00:00", got)
}

func makeNumericDigits(digits []int16, weight, scale int16, negative bool) []byte {
	sign := uint16(0x0000)
	if negative {
		sign = 0x4000
	}
	b := make([]byte, 8+len(digits)*2)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(b[2:4], uint16(weight))
	binary.BigEndian.PutUint16(b[4:6], sign)
	binary.BigEndian.PutUint16(b[6:8], uint16(scale))
	for i, d := range digits {
		binary.BigEndian.PutUint16(b[8+i*2:10+i*2], uint16(d))
	}
	return b
}

func TestNumericIntegerAndFraction(t *testing.T) {
	// 12345678.9012 => groups of 4 digits: 1234 5678 . 9012
	raw := makeNumericDigits([]int16{1234, 5678, 9012}, 1, 4, false)
	got, err := Numeric(raw)
	require.NoError(t, err)
	assert.Equal(t, "12345678.9012", got)
}

func TestNumericNegative(t *testing.T) {
	raw := makeNumericDigits([]int16{1234}, 0, 0, true)
	got, err := Numeric(raw)
	require.NoError(t, err)
	assert.Equal(t, "-1234", got)
}

func TestNumericNaN(t *testing.T) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[4:6], 0xC000)
	got, err := Numeric(b)
	require.NoError(t, err)
	assert.Equal(t, "NaN", got)
}

func TestNumericInfinities(t *testing.T) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[4:6], 0xD000)
	got, err := Numeric(b)
	require.NoError(t, err)
	assert.Equal(t, "Infinity", got)

	binary.BigEndian.PutUint16(b[4:6], 0xF000)
	got, err = Numeric(b)
	require.NoError(t, err)
	assert.Equal(t, "-Infinity", got)
}

func TestArrayOneDimensional(t *testing.T) {
	var b []byte
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint32(hdr[0:4], 1) // ndim
	b = append(b, hdr...)
	dim := make([]byte, 8)
	binary.BigEndian.PutUint32(dim[0:4], 2) // length
	binary.BigEndian.PutUint32(dim[4:8], 1) // lower bound
	b = append(b, dim...)

	elem1 := []byte("a")
	elem2 := []byte("bb")
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(elem1)))
	b = append(b, lenBuf...)
	b = append(b, elem1...)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(elem2)))
	b = append(b, lenBuf...)
	b = append(b, elem2...)

	got, err := Array(b, func(raw []byte) (string, error) { return string(raw), nil })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Scalar)
	assert.Equal(t, "bb", got[1].Scalar)
}

func TestArrayWithNullElement(t *testing.T) {
	var b []byte
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint32(hdr[0:4], 1)
	b = append(b, hdr...)
	dim := make([]byte, 8)
	binary.BigEndian.PutUint32(dim[0:4], 1)
	b = append(b, dim...)
	lenBuf := make([]byte, 4)
	negOne := int32(-1)
	binary.BigEndian.PutUint32(lenBuf, uint32(negOne))
	b = append(b, lenBuf...)

	got, err := Array(b, func(raw []byte) (string, error) { return string(raw), nil })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Null)
}

func TestArrayEmptyDimensionsYieldsEmptySlice(t *testing.T) {
	hdr := make([]byte, 12) // ndim = 0
	got, err := Array(hdr, func(raw []byte) (string, error) { return string(raw), nil })
	require.NoError(t, err)
	assert.Empty(t, got)
}
