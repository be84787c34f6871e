package application

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

var fallbackSeq atomic.Uint64

// NewCommandID returns 16 hex characters (64 random bits). The device echoes
// the id back verbatim, so only its uniqueness matters.
func NewCommandID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16) + strconv.FormatUint(fallbackSeq.Add(1), 16)
	}
	return hex.EncodeToString(buf[:])
}
