package encoding

import (
	"fmt"
	"strings"

	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Canonical encoding names returned by the detector.
const (
	EncUTF8     = "utf-8"
	EncUTF16LE  = "utf-16le"
	EncUTF16BE  = "utf-16be"
	EncUTF32LE  = "utf-32le"
	EncUTF32BE  = "utf-32be"
	EncLatin1   = "iso-8859-1"
	EncCP1252   = "windows-1252"
	EncCP1251   = "windows-1251"
	EncKOI8R    = "koi8-r"
	EncShiftJIS = "shift_jis"
	EncGBK      = "gbk"
	EncBig5     = "big5"
	EncEUCKR    = "euc-kr"
)

// Lookup resolves a canonical name to its x/text encoding. UTF variants are
// resolved directly because the IANA index maps the BOM-less labels
// ambiguously; everything else goes through the index.
func Lookup(name string) (xencoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EncUTF8, "utf8":
		return unicode.UTF8, nil
	case EncUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case EncUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case EncUTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	case EncUTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("encoding: unknown encoding %q", name)
	}
	return enc, nil
}

// canonicalName normalizes a label reported by the statistical detector to
// the detector's canonical vocabulary.
func canonicalName(label string) string {
	lowered := strings.ToLower(strings.TrimSpace(label))
	switch lowered {
	case "utf8", "utf-8":
		return EncUTF8
	case "utf-16", "utf16", "utf-16le":
		return EncUTF16LE
	case "utf-16be":
		return EncUTF16BE
	case "latin1", "latin-1", "iso8859-1", "iso-8859-1", "l1":
		return EncLatin1
	case "cp1252", "windows1252", "windows-1252":
		return EncCP1252
	case "cp1251", "windows1251", "windows-1251":
		return EncCP1251
	case "sjis", "shiftjis", "shift-jis", "shift_jis":
		return EncShiftJIS
	case "gb2312", "gb-2312":
		return EncGBK
	default:
		return lowered
	}
}
