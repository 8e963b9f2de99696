package model

import "encoding/base64"

// urlSafeBase64 is the encoding used for every identifier embedded in a
// URL or query parameter.
var urlSafeBase64 = base64.URLEncoding

// DecodeURLSafeIdentifier decodes a URL-safe base64 identifier string
// back into its raw proto-encoded bytes.
func DecodeURLSafeIdentifier(s string) ([]byte, error) {
	return urlSafeBase64.DecodeString(s)
}
