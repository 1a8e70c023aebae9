package settlement

import (
	"strings"
	"testing"
)

func TestNewInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := NewInviteCode()
		if len(code) != InviteCodeLength {
			t.Fatalf("expected length %d, got %q", InviteCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(inviteAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("codes never varied")
	}
}

func TestInviteAlphabetAvoidsAmbiguousGlyphs(t *testing.T) {
	for _, r := range "01IO" {
		if strings.ContainsRune(inviteAlphabet, r) {
			t.Fatalf("alphabet must not contain %q", r)
		}
	}
}
