package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Anonymous is the visitor id used when neither an IP address nor a user
// agent is known.
const Anonymous = "anonymous"

// BuildVisitorID creates a pseudonymous visitor identifier from the salted
// client address and user agent. IP addresses are never stored, only hashed.
func BuildVisitorID(salt, ipAddress, userAgent string) string {
	ipAddress = strings.TrimSpace(ipAddress)
	userAgent = strings.TrimSpace(userAgent)
	if ipAddress == "" && userAgent == "" {
		return Anonymous
	}

	hash := sha256.Sum256([]byte(salt + "|" + ipAddress + "|" + userAgent))
	return hex.EncodeToString(hash[:])
}
