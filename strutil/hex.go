package strutil

import "github.com/leftmike/quill/sql"

const hexDigits = "0123456789abcdef"

// EncodeHex renders b as lower-case hex digits 0-9a-f, per §6.
func EncodeHex(b []byte) string {
	buf := make([]byte, len(b)*2)
	for i, c := range b {
		buf[i*2] = hexDigits[c>>4]
		buf[i*2+1] = hexDigits[c&0x0f]
	}
	return string(buf)
}

// DecodeHex parses s as hex digits, per §6, accepting upper-case A-F as
// well as lower-case a-f: an odd length or an invalid digit is a
// FormatError with the fault position marked.
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, sql.NewFormatError(s, len(s), "odd-length hex string")
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi, ok := hexDigit(s[i])
		if !ok {
			return nil, sql.NewFormatError(s, i, "invalid hex digit")
		}
		lo, ok := hexDigit(s[i+1])
		if !ok {
			return nil, sql.NewFormatError(s, i+1, "invalid hex digit")
		}
		b[i/2] = hi<<4 | lo
	}
	return b, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
