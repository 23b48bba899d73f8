// Package protopatch rewrites the OAuth credential sub-message inside
// Antigravity's persisted agent state without a schema definition.
//
// The blob is a protobuf-style sequence of tagged fields. Only field 6 (the
// credential sub-message) is understood; every other field is copied through
// byte-for-byte, including fields this package has never seen. This is a
// minimal tagged-field codec, not a protobuf implementation.
package protopatch

import (
	"encoding/base64"
	"fmt"
)

// Wire types used by the tagged-field encoding.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// credentialFieldNumber is the top-level field holding the OAuth credential
// sub-message in the agent state blob.
const credentialFieldNumber = 6

// AppendVarint appends v in base-128 varint encoding (7 bits per byte, high
// bit set on continuation bytes).
func AppendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v&0x7F)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// ReadVarint decodes a varint starting at off and returns the value plus the
// offset of the byte after it.
func ReadVarint(b []byte, off int) (uint64, int, error) {
	var v uint64
	var shift uint
	for pos := off; pos < len(b); pos++ {
		c := b[pos]
		if shift >= 64 {
			return 0, 0, fmt.Errorf("varint at %d overflows", off)
		}
		v |= uint64(c&0x7F) << shift
		if c&0x80 == 0 {
			return v, pos + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("truncated varint at %d", off)
}

// SkipField advances past one field value of the given wire type, returning
// the offset of the next tag. An unknown wire type is a hard parse error:
// nothing after it can be located reliably.
func SkipField(b []byte, off int, wireType int) (int, error) {
	switch wireType {
	case wireVarint:
		_, next, err := ReadVarint(b, off)
		return next, err
	case wireFixed64:
		off += 8
	case wireBytes:
		length, next, err := ReadVarint(b, off)
		if err != nil {
			return 0, err
		}
		if length > uint64(len(b)-next) {
			return 0, fmt.Errorf("length-delimited field at %d exceeds buffer", off)
		}
		off = next + int(length)
	case wireFixed32:
		off += 4
	default:
		return 0, fmt.Errorf("unknown wire type %d at %d", wireType, off)
	}
	if off > len(b) {
		return 0, fmt.Errorf("field at %d exceeds buffer", off)
	}
	return off, nil
}

// RemoveField returns a copy of b with every top-level occurrence of
// fieldNum dropped. All other fields keep their original encoding verbatim.
func RemoveField(b []byte, fieldNum int) ([]byte, error) {
	out := make([]byte, 0, len(b))
	off := 0
	for off < len(b) {
		start := off
		tag, next, err := ReadVarint(b, off)
		if err != nil {
			return nil, err
		}
		wireType := int(tag & 7)
		field := int(tag >> 3)
		next, err = SkipField(b, next, wireType)
		if err != nil {
			return nil, err
		}
		if field != fieldNum {
			out = append(out, b[start:next]...)
		}
		off = next
	}
	return out, nil
}

// BuildCredentialField encodes a fresh field-6 credential sub-message:
// field 1 = access token, field 2 = "Bearer", field 3 = refresh token,
// field 4 = nested message whose field 1 is the expiry as a unix-seconds
// varint.
func BuildCredentialField(accessToken, refreshToken string, expiry int64) []byte {
	var body []byte
	body = appendStringField(body, 1, accessToken)
	body = appendStringField(body, 2, "Bearer")
	body = appendStringField(body, 3, refreshToken)

	var expiryMsg []byte
	expiryMsg = AppendVarint(expiryMsg, 1<<3|wireVarint)
	expiryMsg = AppendVarint(expiryMsg, uint64(expiry))
	body = AppendVarint(body, 4<<3|wireBytes)
	body = AppendVarint(body, uint64(len(expiryMsg)))
	body = append(body, expiryMsg...)

	var out []byte
	out = AppendVarint(out, credentialFieldNumber<<3|wireBytes)
	out = AppendVarint(out, uint64(len(body)))
	return append(out, body...)
}

func appendStringField(b []byte, fieldNum int, s string) []byte {
	b = AppendVarint(b, uint64(fieldNum)<<3|wireBytes)
	b = AppendVarint(b, uint64(len(s)))
	return append(b, s...)
}

// Patch replaces the credential field inside a base64-encoded state blob with
// freshly built credentials and re-encodes it. The input must parse as a
// tagged-field sequence; callers are expected to treat a returned error as
// "leave the blob alone", not to abort their whole transaction.
func Patch(blobB64, accessToken, refreshToken string, expiry int64) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return "", fmt.Errorf("decode state blob: %w", err)
	}
	stripped, err := RemoveField(blob, credentialFieldNumber)
	if err != nil {
		return "", fmt.Errorf("parse state blob: %w", err)
	}
	patched := append(stripped, BuildCredentialField(accessToken, refreshToken, expiry)...)
	return base64.StdEncoding.EncodeToString(patched), nil
}
