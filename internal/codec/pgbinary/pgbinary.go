// Package pgbinary decodes PostgreSQL wire binary-format values into
// their canonical textual form. These decoders are used by the query
// result-shaping path when a column's binary representation needs a
// stable, driver-independent text rendering (e.g. for fingerprinting
// and response caching) rather than relying on pgx's own Go-typed
// decoding.
//
// Every decoder fails cleanly (returns an error) on short or malformed
// input rather than panicking.
package pgbinary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrShortBuffer is returned when the input is too short for the type
// being decoded.
var ErrShortBuffer = errors.New("pgbinary: buffer too short")

// pgEpoch is the reference instant PostgreSQL measures timestamps and
// dates from.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// UUID decodes a 16-byte UUID into lowercase 8-4-4-4-12 hex form.
func UUID(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("%w: uuid wants 16 bytes, got %d", ErrShortBuffer, len(b))
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

// Bytea decodes a raw byte payload into PostgreSQL's hex bytea text
// form: "\x" followed by lowercase hex.
func Bytea(b []byte) string {
	var sb strings.Builder
	sb.WriteString(`\x`)
	for _, c := range b {
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// Macaddr decodes a 6-byte MACADDR or 8-byte MACADDR8 into
// colon-separated lowercase hex.
func Macaddr(b []byte) (string, error) {
	if len(b) != 6 && len(b) != 8 {
		return "", fmt.Errorf("%w: macaddr wants 6 or 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":"), nil
}

// Inet decodes an INET/CIDR value. Binary layout: family (1 byte: 2 =
// AF_INET, 3 = AF_INET6), netmask bits (1 byte), is_cidr flag (1
// byte), address length (1 byte), then the address bytes. CIDR values
// and host-mask INET values with a mask narrower than the full address
// width are rendered with a "/mask" suffix.
func Inet(b []byte) (string, error) {
	if len(b) < 4 {
		return "", fmt.Errorf("%w: inet header", ErrShortBuffer)
	}
	family := b[0]
	bits := b[1]
	isCidr := b[2] != 0
	addrLen := int(b[3])
	addr := b[4:]
	if len(addr) < addrLen {
		return "", fmt.Errorf("%w: inet address", ErrShortBuffer)
	}
	addr = addr[:addrLen]

	var host string
	switch family {
	case 2: // AF_INET
		if addrLen != 4 {
			return "", fmt.Errorf("pgbinary: inet ipv4 address must be 4 bytes")
		}
		host = fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])
	case 3: // AF_INET6
		if addrLen != 16 {
			return "", fmt.Errorf("pgbinary: inet ipv6 address must be 16 bytes")
		}
		host = collapseIPv6(addr)
	default:
		return "", fmt.Errorf("pgbinary: unknown inet family %d", family)
	}

	fullWidth := 32
	if family == 3 {
		fullWidth = 128
	}
	if isCidr || int(bits) != fullWidth {
		return fmt.Sprintf("%s/%d", host, bits), nil
	}
	return host, nil
}

func collapseIPv6(addr []byte) string {
	groups := make([]uint16, 8)
	for i := 0; i < 8; i++ {
		groups[i] = binary.BigEndian.Uint16(addr[i*2 : i*2+2])
	}

	// Find the longest run of >=2 consecutive zero groups.
	bestStart, bestLen := -1, 0
	curStart, curLen := -1, 0
	for i, g := range groups {
		if g == 0 {
			if curStart == -1 {
				curStart = i
			}
			curLen++
			if curLen > bestLen {
				bestStart, bestLen = curStart, curLen
			}
		} else {
			curStart, curLen = -1, 0
		}
	}
	if bestLen < 2 {
		bestStart = -1
	}

	var parts []string
	i := 0
	collapsed := false
	for i < 8 {
		if bestStart == i && !collapsed {
			parts = append(parts, "")
			if i == 0 {
				parts = append(parts, "")
			}
			i += bestLen
			collapsed = true
			if i == 8 {
				parts = append(parts, "")
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", groups[i]))
		i++
	}
	out := strings.Join(parts, ":")
	out = strings.ReplaceAll(out, ":::", "::")
	return out
}

// Timestamp decodes a TIMESTAMP or TIMESTAMPTZ binary value:
// microseconds since 2000-01-01. TIMESTAMPTZ is rendered in UTC with a
// trailing "Z"; plain TIMESTAMP has no zone suffix.
func Timestamp(b []byte, withZone bool) (string, error) {
	if len(b) != 8 {
		return "", fmt.Errorf("%w: timestamp wants 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	usec := int64(binary.BigEndian.Uint64(b))
	t := pgEpoch.Add(time.Duration(usec) * time.Microsecond)
	if withZone {
		return t.UTC().Format("2006-01-02T15:04:05.999999999Z"), nil
	}
	return t.Format("2006-01-02T15:04:05.999999999"), nil
}

// Date decodes a DATE binary value: int32 days since 2000-01-01.
func Date(b []byte) (string, error) {
	if len(b) != 4 {
		return "", fmt.Errorf("%w: date wants 4 bytes, got %d", ErrShortBuffer, len(b))
	}
	days := int32(binary.BigEndian.Uint32(b))
	t := pgEpoch.AddDate(0, 0, int(days))
	return t.Format("2006-01-02"), nil
}

// Time decodes a TIME (without time zone) binary value: int64
// microseconds since midnight.
func Time(b []byte) (string, error) {
	if len(b) != 8 {
		return "", fmt.Errorf("%w: time wants 8 bytes, got %d", ErrShortBuffer, len(b))
	}
	usec := int64(binary.BigEndian.Uint64(b))
	return formatClock(usec), nil
}

// TimeTZ decodes a TIMETZ binary value: int64 microseconds since
// midnight, followed by an int32 zone offset in seconds *west* of UTC.
func TimeTZ(b []byte) (string, error) {
	if len(b) != 12 {
		return "", fmt.Errorf("%w: timetz wants 12 bytes, got %d", ErrShortBuffer, len(b))
	}
	usec := int64(binary.BigEndian.Uint64(b[0:8]))
	westSecs := int32(binary.BigEndian.Uint32(b[8:12]))

	clock := formatClock(usec)
	eastSecs := -int(westSecs)
	sign := "+"
	if eastSecs < 0 {
		sign = "-"
		eastSecs = -eastSecs
	}
	hh := eastSecs / 3600
	mm := (eastSecs % 3600) / 60
	if mm == 0 {
		return fmt.Sprintf("%s%s%02d", clock, sign, hh), nil
	}
	return fmt.Sprintf("%s%s%02d:%02d", clock, sign, hh, mm), nil
}

func formatClock(usec int64) string {
	totalSecs := usec / 1_000_000
	frac := usec % 1_000_000
	hh := totalSecs / 3600
	mm := (totalSecs % 3600) / 60
	ss := totalSecs % 60
	if frac == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%02d:%02d:%02d.%s", hh, mm, ss, fracStr)
}

// Interval decodes an INTERVAL binary value: int64 microseconds, int32
// days, int32 months. Rendered as "N years M mons K days
// HH:MM:SS[.fff]", omitting zero components; if every component is
// zero, renders "00:00:00".
func Interval(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("%w: interval wants 16 bytes, got %d", ErrShortBuffer, len(b))
	}
	usec := int64(binary.BigEndian.Uint64(b[0:8]))
	days := int32(binary.BigEndian.Uint32(b[8:12]))
	months := int32(binary.BigEndian.Uint32(b[12:16]))

	years := months / 12
	mons := months % 12

	var parts []string
	if years != 0 {
		parts = append(parts, pluralize(int(years), "year"))
	}
	if mons != 0 {
		parts = append(parts, pluralize(int(mons), "mon"))
	}
	if days != 0 {
		parts = append(parts, pluralize(int(days), "day"))
	}

	clock := formatSignedClock(usec)
	if len(parts) == 0 {
		return clock, nil
	}
	return strings.Join(parts, " ") + " " + clock, nil
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func formatSignedClock(usec int64) string {
	neg := usec < 0
	if neg {
		usec = -usec
	}
	s := formatClock(usec)
	if neg {
		return "-" + s
	}
	return s
}

// Numeric decodes a NUMERIC binary value. Layout: ndigits (int16),
// weight (int16), sign (uint16: 0x0000 positive, 0x4000 negative,
// 0xC000 NaN, 0xD000 +Infinity, 0xF000 -Infinity), dscale (uint16),
// then ndigits base-10000 digits (each an int16).
func Numeric(b []byte) (string, error) {
	if len(b) < 8 {
		return "", fmt.Errorf("%w: numeric header", ErrShortBuffer)
	}
	ndigits := int16(binary.BigEndian.Uint16(b[0:2]))
	weight := int16(binary.BigEndian.Uint16(b[2:4]))
	sign := binary.BigEndian.Uint16(b[4:6])
	dscale := binary.BigEndian.Uint16(b[6:8])

	switch sign {
	case 0xC000:
		return "NaN", nil
	case 0xD000:
		return "Infinity", nil
	case 0xF000:
		return "-Infinity", nil
	}

	need := 8 + int(ndigits)*2
	if len(b) < need {
		return "", fmt.Errorf("%w: numeric digits", ErrShortBuffer)
	}
	digits := make([]int16, ndigits)
	for i := 0; i < int(ndigits); i++ {
		digits[i] = int16(binary.BigEndian.Uint16(b[8+i*2 : 10+i*2]))
	}

	text := applyScale(renderNumericDigits(digits, weight), int(dscale))
	if sign == 0x4000 && strings.Trim(text, "0.") != "" {
		text = "-" + text
	}
	return text, nil
}

// renderNumericDigits reconstructs the unsigned decimal text from
// base-10000 digit groups and the weight of the first group.
func renderNumericDigits(digits []int16, weight int16) string {
	if len(digits) == 0 {
		return "0"
	}
	var intPart strings.Builder
	var fracPart strings.Builder
	if weight < -1 {
		// implicit zero groups between the decimal point and the first digit
		fracPart.WriteString(strings.Repeat("0000", -int(weight)-1))
	}

	// Digit i (0-indexed) represents positional weight (weight - i),
	// i.e. the value of digit i is digits[i] * 10000^(weight-i).
	for i, d := range digits {
		pos := int(weight) - i
		group := fmt.Sprintf("%04d", d)
		if pos >= 0 {
			intPart.WriteString(group)
		} else {
			fracPart.WriteString(group)
		}
	}

	intStr := intPart.String()
	if int(weight) >= len(digits) {
		// trailing implicit zero groups in the integer part
		intStr += strings.Repeat("0000", int(weight)-len(digits)+1)
	}
	intStr = strings.TrimLeft(intStr, "0")
	if intStr == "" {
		intStr = "0"
	}

	fracStr := fracPart.String()
	if fracStr == "" {
		return intStr
	}
	return intStr + "." + fracStr
}

// applyScale trims or pads the fractional part of a decimal text
// string to exactly `scale` digits.
func applyScale(text string, scale int) string {
	intPart, fracPart, hasFrac := strings.Cut(text, ".")
	if !hasFrac {
		fracPart = ""
	}
	if scale <= 0 {
		return intPart
	}
	if len(fracPart) > scale {
		fracPart = fracPart[:scale]
	} else {
		fracPart += strings.Repeat("0", scale-len(fracPart))
	}
	return intPart + "." + fracPart
}

// ArrayElement is a decoded array leaf or nested array.
type ArrayElement struct {
	Scalar string
	Null   bool
	Nested []ArrayElement
}

// Array decodes a PostgreSQL array binary value. Layout: ndim
// (int32), flags (int32, has-null bit), element type OID (int32),
// then for each dimension a (length, lower-bound) int32 pair, then the
// elements in row-major order, each length-prefixed (-1 = NULL).
// decode is applied to each non-null scalar element's raw bytes.
func Array(b []byte, decode func([]byte) (string, error)) ([]ArrayElement, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("%w: array header", ErrShortBuffer)
	}
	ndim := int32(binary.BigEndian.Uint32(b[0:4]))
	// flags at b[4:8], elem type oid at b[8:12] — not needed for decoding shape.
	off := 12
	if ndim == 0 {
		return []ArrayElement{}, nil
	}

	dims := make([]int32, ndim)
	for i := 0; i < int(ndim); i++ {
		if len(b) < off+8 {
			return nil, fmt.Errorf("%w: array dimension", ErrShortBuffer)
		}
		dims[i] = int32(binary.BigEndian.Uint32(b[off : off+4]))
		// lower bound at b[off+4:off+8] ignored for decoding purposes.
		off += 8
	}

	elems, _, err := decodeArrayLevel(b, off, dims, decode)
	return elems, err
}

func decodeArrayLevel(b []byte, off int, dims []int32, decode func([]byte) (string, error)) ([]ArrayElement, int, error) {
	if len(dims) == 1 {
		out := make([]ArrayElement, 0, dims[0])
		for i := int32(0); i < dims[0]; i++ {
			if len(b) < off+4 {
				return nil, off, fmt.Errorf("%w: array element length", ErrShortBuffer)
			}
			length := int32(binary.BigEndian.Uint32(b[off : off+4]))
			off += 4
			if length < 0 {
				out = append(out, ArrayElement{Null: true})
				continue
			}
			if len(b) < off+int(length) {
				return nil, off, fmt.Errorf("%w: array element data", ErrShortBuffer)
			}
			s, err := decode(b[off : off+int(length)])
			if err != nil {
				return nil, off, err
			}
			out = append(out, ArrayElement{Scalar: s})
			off += int(length)
		}
		return out, off, nil
	}

	out := make([]ArrayElement, 0, dims[0])
	for i := int32(0); i < dims[0]; i++ {
		nested, newOff, err := decodeArrayLevel(b, off, dims[1:], decode)
		if err != nil {
			return nil, off, err
		}
		off = newOff
		out = append(out, ArrayElement{Nested: nested})
	}
	return out, off, nil
}
