package settlement

import "crypto/rand"

// inviteAlphabet omits characters that read ambiguously in chat messages
// (I, O, 0, 1 and lookalikes).
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const InviteCodeLength = 8

// NewInviteCode returns a random room invite code. Uniqueness is the
// caller's concern; collisions are retried against the room store.
func NewInviteCode() string {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}
