package encoding

import "bytes"

// bomSignature maps a byte-order mark to its canonical encoding name.
// Order matters: UTF-32 marks embed the UTF-16 ones and must be checked first.
type bomSignature struct {
	mark []byte
	name string
}

var bomSignatures = []bomSignature{
	{mark: []byte{0xFF, 0xFE, 0x00, 0x00}, name: EncUTF32LE},
	{mark: []byte{0x00, 0x00, 0xFE, 0xFF}, name: EncUTF32BE},
	{mark: []byte{0xEF, 0xBB, 0xBF}, name: EncUTF8},
	{mark: []byte{0xFF, 0xFE}, name: EncUTF16LE},
	{mark: []byte{0xFE, 0xFF}, name: EncUTF16BE},
}

// sniffBOM inspects the first four bytes for a byte-order mark and returns
// the canonical encoding name, or empty when no mark is present.
func sniffBOM(head []byte) string {
	if len(head) > 4 {
		head = head[:4]
	}
	for _, sig := range bomSignatures {
		if bytes.HasPrefix(head, sig.mark) {
			return sig.name
		}
	}
	return ""
}
