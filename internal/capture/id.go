package capture

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newEventID returns an opaque, time-ordered identifier for a capture event.
func newEventID() string {
	var buf [4]byte

	_, _ = rand.Read(buf[:])

	return fmt.Sprintf("cap_%d_%s", time.Now().UnixNano(), hex.EncodeToString(buf[:]))
}
