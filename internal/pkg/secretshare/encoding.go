package secretshare

import (
	"encoding/hex"
	"strings"
)

// SharePrefix tags the string form of a share.
const SharePrefix = "dms"

// elementHexLen is the number of hex digits per field element. Field elements
// reach 256, so one byte is not enough.
const elementHexLen = 4

// String encodes the share as SharePrefix, the id digit, then 4 hex digits per
// field element, big-endian. A share whose id is outside 1..NumShares encodes
// as the empty string, which Parse rejects.
func (s Share) String() string {
	if !validID(s.ID) {
		return ""
	}
	var b strings.Builder
	b.Grow(len(SharePrefix) + 1 + elementHexLen*len(s.Values))
	b.WriteString(SharePrefix)
	b.WriteByte(byte('0' + s.ID))
	buf := make([]byte, 2)
	for _, v := range s.Values {
		buf[0], buf[1] = byte(v>>8), byte(v)
		b.WriteString(hex.EncodeToString(buf))
	}
	return b.String()
}

// Parse decodes the string form produced by Share.String.
func Parse(encoded string) (Share, error) {
	rest, ok := strings.CutPrefix(encoded, SharePrefix)
	if !ok || len(rest) < 1 {
		return Share{}, ErrInvalidShareFormat
	}
	id := int(rest[0]) - '0'
	if !validID(id) {
		return Share{}, ErrInvalidShareFormat
	}
	body := rest[1:]
	if len(body)%elementHexLen != 0 {
		return Share{}, ErrInvalidShareFormat
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return Share{}, ErrInvalidShareFormat
	}
	values := make([]uint16, len(raw)/2)
	for i := range values {
		v := uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		if v >= Prime {
			return Share{}, ErrInvalidShareFormat
		}
		values[i] = v
	}
	return Share{ID: id, Values: values}, nil
}

// ReconstructStrings parses both encoded shares and reconstructs the secret.
func ReconstructStrings(a, b string) ([]byte, error) {
	sa, err := Parse(a)
	if err != nil {
		return nil, err
	}
	sb, err := Parse(b)
	if err != nil {
		return nil, err
	}
	return Reconstruct(sa, sb)
}
