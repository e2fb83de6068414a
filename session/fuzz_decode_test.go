package session

import (
	"testing"
	"time"
)

// FuzzRecordDecode feeds arbitrary bytes to the record decoder. It must never
// panic and anything it accepts must re-encode.
func FuzzRecordDecode(f *testing.F) {
	rec := &Record{
		UserID:              "user1",
		Username:            "alice",
		Role:                "admin",
		CurrentSessionID:    "sid-fuzz",
		SessionExpiresAt:    time.Unix(1700003600, 0),
		LastTokenRefresh:    time.Unix(1700000000, 0),
		FailedLoginAttempts: 3,
		IsLocked:            true,
		LockoutUntil:        time.Unix(1700000900, 0),
	}
	encoded, err := Encode(rec)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{recordFormatVersionV1})
	f.Add([]byte{255, 255, 255})
	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 30 {
		f.Add(encoded[:30])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(r); err != nil {
			t.Fatalf("decoded record does not re-encode: %v", err)
		}
	})
}
