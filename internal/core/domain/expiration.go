package domain

import "time"

// IsVotable reports whether a poll with the given expiration accepts votes at now.
// A nil expiration never expires; otherwise now must be strictly before it.
func IsVotable(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.Before(*expiresAt)
}
