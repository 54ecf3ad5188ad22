package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Owner returns the host-scoped claim attribution string for this process.
// Claim correctness does not depend on its uniqueness.
func Owner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// NewDigestID derives a short digest identifier from the owner string and the
// current wall-clock second, truncated for readability.
func NewDigestID(owner string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", owner, time.Now().Unix())))
	return hex.EncodeToString(sum[:])[:16]
}

// NewRunID generates a unique batch run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
