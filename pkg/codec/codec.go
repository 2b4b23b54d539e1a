// Package codec maps user-supplied keys to log subject tokens and back.
//
// A key may be any UTF-8 string, including characters that NATS subjects
// treat specially ('.', '*', '>', whitespace). Encode/Decode round-trip
// every such key losslessly by base64-encoding its raw bytes.
package codec

import "encoding/base64"

// Encode returns the subject-safe token for key.
func Encode(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}

// Decode recovers the original key from a token produced by Encode.
func Decode(token string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutSubject returns the subject a PUT event for key is published to
// within stream.
func PutSubject(stream, key string) string {
	return stream + "." + Encode(key) + "-put"
}

// DeleteSubject returns the subject a DELETE event for key is published
// to within stream.
func DeleteSubject(stream, key string) string {
	return stream + "." + Encode(key) + "-delete"
}
