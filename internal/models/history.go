package models

import "time"

// PasswordHistoryRetention is the number of prior password hashes retained
// per account for reuse checking. Older entries are pruned.
const PasswordHistoryRetention = 5

// PasswordHistoryEntry is an append-only record of a previously set password.
type PasswordHistoryEntry struct {
	ID             string
	AccountID      string
	HashedPassword string
	CreatedAt      time.Time
}

// VerificationHistoryEntry is an audit record of a successful OTP
// verification. Prior entries for the account are cleared on each new
// verification cycle; only the latest matters operationally.
type VerificationHistoryEntry struct {
	ID         string
	AccountID  string
	VerifiedAt time.Time
	IPAddress  string
	UserAgent  string
}
