package readerproto

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Escape rewrites s for the reader display: ASCII and single-byte GBK
// characters stay literal, double-byte GBK characters become \xHHHH, and
// characters GBK cannot encode pass through unchanged.
func Escape(s string) string {
	var b strings.Builder
	enc := simplifiedchinese.GBK.NewEncoder()
	for _, r := range s {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		gb, err := enc.Bytes([]byte(string(r)))
		if err != nil || len(gb) != 2 {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, `\x%02X%02X`, gb[0], gb[1])
	}
	return b.String()
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	var b strings.Builder
	dec := simplifiedchinese.GBK.NewDecoder()
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], `\x`) && len(s)-i >= 6 {
			v, err := strconv.ParseUint(s[i+2:i+6], 16, 16)
			if err == nil {
				out, err := dec.Bytes([]byte{byte(v >> 8), byte(v)})
				if err != nil {
					return "", fmt.Errorf("unescape %q: %w", s[i:i+6], err)
				}
				b.Write(out)
				i += 6
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		b.WriteRune(r)
		i += size
	}
	return b.String(), nil
}

// EncodeWire converts a response line to the reader's GBK byte stream.
// Runes GBK cannot represent are written as UTF-8.
func EncodeWire(s string) []byte {
	out := make([]byte, 0, len(s))
	enc := simplifiedchinese.GBK.NewEncoder()
	for _, r := range s {
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		gb, err := enc.Bytes([]byte(string(r)))
		if err != nil {
			out = utf8.AppendRune(out, r)
			continue
		}
		out = append(out, gb...)
	}
	return out
}

// DecodeWire is the inverse of EncodeWire for GBK-encodable text.
func DecodeWire(b []byte) (string, error) {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
