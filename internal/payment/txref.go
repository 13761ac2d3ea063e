package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

// NewTxRef builds "<prefix>-<userID>-<epochMillis>". The prefix must not
// contain '-' (enforced by config validation).
func NewTxRef(prefix string, userID int64, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", prefix, userID, now.UnixMilli())
}

// ParseUserID extracts the user id from the second '-' segment of txRef.
func ParseUserID(txRef string) (int64, error) {
	parts := strings.Split(txRef, "-")
	if len(parts) < 2 || parts[1] == "" {
		return 0, apperr.New(apperr.KindInvalidReference, "Invalid transaction reference")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindInvalidReference, "Invalid transaction reference")
	}
	return id, nil
}
