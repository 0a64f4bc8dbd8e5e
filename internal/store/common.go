package store

import (
	"encoding/binary"
)

const (
	ErrFailedBatchCommit = "failed to commit batch: %v"
)

// Prefix constants for all store types
const (
	prefixMeta byte = iota + 1
	prefixCourt
	prefixParticipant
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixMeta:
		return "meta"
	case prefixCourt:
		return "court"
	case prefixParticipant:
		return "participant"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and an identifier
func makeKey(prefix byte, id []byte) []byte {
	key := make([]byte, 1+len(id))
	key[0] = prefix
	copy(key[1:], id)
	return key
}

// makeCourtKey uses a big-endian market id so courts iterate in id order.
func makeCourtKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return makeKey(prefixCourt, b[:])
}
