package runtime

import (
	"github.com/gqlforge/gqlforge/internal/codec/pgbinary"
	"github.com/gqlforge/gqlforge/internal/pathresolver"
)

// PostgreSQL wire type OIDs for the columns that need a canonical text
// rendering rather than pgx's Go-typed decoding. Declared here instead
// of importing pgtype's constant table: only these few are relevant and
// macaddr8 has no named constant in every pgtype release.
const (
	oidBytea       = 17
	oidMacaddr8    = 774
	oidMacaddr     = 829
	oidInet        = 869
	oidCidr        = 650
	oidDate        = 1082
	oidTime        = 1083
	oidTimestamp   = 1114
	oidTimestamptz = 1184
	oidInterval    = 1186
	oidTimetz      = 1266
	oidNumeric     = 1700
	oidUUID        = 2950
)

const binaryFormatCode = 1

// columnValue shapes one result cell for the response tree. Columns
// whose binary wire form has a canonical text rendering (the UUID /
// NUMERIC / INET / MACADDR / INTERVAL / TIMETZ / BYTEA / date-time
// family) are decoded from the raw wire bytes so the gateway emits the
// same text regardless of driver version; everything else keeps pgx's
// own decoding. A failed decode falls back to the driver value — the
// bytes were already accepted by pgx, so a stricter re-parse failing
// here means our decoder, not the upstream, is the odd one out.
func columnValue(oid uint32, format int16, raw []byte, decoded any) pathresolver.Value {
	if raw == nil {
		return nil
	}
	if format != binaryFormatCode {
		return decoded
	}

	var (
		text string
		err  error
	)
	switch oid {
	case oidUUID:
		text, err = pgbinary.UUID(raw)
	case oidNumeric:
		text, err = pgbinary.Numeric(raw)
	case oidInet, oidCidr:
		text, err = pgbinary.Inet(raw)
	case oidMacaddr, oidMacaddr8:
		text, err = pgbinary.Macaddr(raw)
	case oidInterval:
		text, err = pgbinary.Interval(raw)
	case oidTimetz:
		text, err = pgbinary.TimeTZ(raw)
	case oidBytea:
		return pgbinary.Bytea(raw)
	case oidTimestamp:
		text, err = pgbinary.Timestamp(raw, false)
	case oidTimestamptz:
		text, err = pgbinary.Timestamp(raw, true)
	case oidDate:
		text, err = pgbinary.Date(raw)
	case oidTime:
		text, err = pgbinary.Time(raw)
	default:
		return decoded
	}
	if err != nil {
		return decoded
	}
	return text
}
