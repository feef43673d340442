package domain

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	cases := []struct {
		messageID int64
		partial   uint32
	}{
		{1, 0},
		{1, 1},
		{42, 123456789},
		{maxMessageID, 0},
		{maxMessageID, 1<<32 - 1},
		{987654, 4242},
	}

	seen := make(map[Token]bool)
	for _, tc := range cases {
		token, err := EncodeToken(tc.messageID, tc.partial)
		if err != nil {
			t.Fatalf("EncodeToken(%d, %d): %v", tc.messageID, tc.partial, err)
		}
		if seen[token] {
			t.Fatalf("token collision for (%d, %d)", tc.messageID, tc.partial)
		}
		seen[token] = true

		messageID, partial, err := DecodeToken(token)
		if err != nil {
			t.Fatalf("DecodeToken(%v): %v", token, err)
		}
		if messageID != tc.messageID || partial != tc.partial {
			t.Fatalf("round trip mismatch: got (%d, %d), want (%d, %d)", messageID, partial, tc.messageID, tc.partial)
		}
		if token.MessageID() != tc.messageID {
			t.Fatalf("MessageID() = %d, want %d", token.MessageID(), tc.messageID)
		}
	}
}

func TestEncodeTokenDomain(t *testing.T) {
	if _, err := EncodeToken(0, 1); err == nil {
		t.Fatal("expected error for zero message id")
	}
	if _, err := EncodeToken(-5, 1); err == nil {
		t.Fatal("expected error for negative message id")
	}
	if _, err := EncodeToken(maxMessageID+1, 1); err == nil {
		t.Fatal("expected error for oversized message id")
	}
}

func TestParseToken(t *testing.T) {
	token, err := EncodeToken(77, 99)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseToken(token.String())
	if err != nil {
		t.Fatalf("ParseToken(%q): %v", token.String(), err)
	}
	if parsed != token {
		t.Fatalf("ParseToken = %v, want %v", parsed, token)
	}

	if _, err := ParseToken("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric token")
	}
	if _, err := ParseToken("7"); err == nil {
		t.Fatal("expected error for token with zero message id")
	}
}
