package util

import "encoding/hex"

// HexEncode returns the lowercase hex encoding of src.
func HexEncode(src []byte) string {
	return hex.EncodeToString(src)
}

// HexDecode decodes a hex string.
func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
