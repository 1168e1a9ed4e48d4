package dex

import (
	"unicode/utf16"

	"github.com/dexcount/internal/parser"
)

// decodeMUTF8 decodes DEX "modified UTF-8": NUL is encoded as C0 80 and
// supplementary characters appear as two separately encoded UTF-16
// surrogates. utf16Len is the declared length in UTF-16 code units and must
// match the decoded data.
func decodeMUTF8(b []byte, utf16Len uint32) (string, error) {
	// every code unit takes at least one byte
	if uint64(utf16Len) > uint64(len(b)) {
		return "", parser.ErrInvalidString
	}

	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		if len(b) != int(utf16Len) {
			return "", parser.ErrInvalidString
		}
		return string(b), nil
	}

	units := make([]uint16, 0, utf16Len)
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", parser.ErrInvalidString
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", parser.ErrInvalidString
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", parser.ErrInvalidString
		}
	}
	if len(units) != int(utf16Len) {
		return "", parser.ErrInvalidString
	}
	return string(utf16.Decode(units)), nil
}
