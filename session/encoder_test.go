package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

func encodeV1(t *testing.T, r *Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionV1)
	for _, s := range []string{r.UserID, r.Role, r.CurrentSessionID} {
		if err := writeString(&buf, s, "field"); err != nil {
			t.Fatalf("write string: %v", err)
		}
	}
	writeTime(&buf, r.SessionExpiresAt)
	writeTime(&buf, r.LastTokenRefresh)
	_ = binary.Write(&buf, binary.BigEndian, uint32(r.FailedLoginAttempts))
	var flags byte
	if r.IsLocked {
		flags |= flagLocked
	}
	buf.WriteByte(flags)
	writeTime(&buf, r.LockoutUntil)
	return buf.Bytes()
}

func TestEncodeDecodeKeepsAllFields(t *testing.T) {
	base := time.Unix(1700000000, 123).UTC()
	in := &Record{
		UserID:              "u1",
		Username:            "alice",
		Role:                "member",
		CurrentSessionID:    "sid-1",
		SessionExpiresAt:    base.Add(24 * time.Hour),
		LastTokenRefresh:    base,
		FailedLoginAttempts: 4,
		LastFailedLogin:     base.Add(-time.Minute),
		IsLocked:            true,
		LockoutUntil:        base.Add(15 * time.Minute),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != recordFormatVersionCurrent {
		t.Fatalf("expected version byte %d, got %d", recordFormatVersionCurrent, data[0])
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.Username != in.Username || out.Role != in.Role || out.CurrentSessionID != in.CurrentSessionID {
		t.Fatalf("identity fields mismatch: %+v", out)
	}
	if !out.SessionExpiresAt.Equal(in.SessionExpiresAt) || !out.LastTokenRefresh.Equal(in.LastTokenRefresh) {
		t.Fatalf("session times mismatch: %+v", out)
	}
	if out.FailedLoginAttempts != 4 || !out.IsLocked || !out.LockoutUntil.Equal(in.LockoutUntil) || !out.LastFailedLogin.Equal(in.LastFailedLogin) {
		t.Fatalf("lock fields mismatch: %+v", out)
	}
}

func TestEncodeDecodeZeroTimes(t *testing.T) {
	data, err := Encode(&Record{UserID: "u1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.SessionExpiresAt.IsZero() || !out.LockoutUntil.IsZero() || out.HasSession(time.Now()) {
		t.Fatalf("expected zero times, got %+v", out)
	}
}

func TestDecodeV1Record(t *testing.T) {
	exp := time.Unix(1700003600, 0).UTC()
	data := encodeV1(t, &Record{
		UserID:              "legacy",
		Role:                "member",
		CurrentSessionID:    "sid-old",
		SessionExpiresAt:    exp,
		FailedLoginAttempts: 2,
	})
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if out.UserID != "legacy" || out.CurrentSessionID != "sid-old" || out.FailedLoginAttempts != 2 {
		t.Fatalf("unexpected v1 record: %+v", out)
	}
	if out.Username != "" || !out.LastFailedLogin.IsZero() {
		t.Fatalf("v1 record should carry no v2 fields: %+v", out)
	}
	if !out.SessionExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, out.SessionExpiresAt)
	}

	again, err := Encode(out)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if again[0] != recordFormatVersionCurrent {
		t.Fatalf("expected upgrade to current version, got %d", again[0])
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if !errors.Is(err, ErrRecordCorrupt) || !strings.Contains(err.Error(), "unknown version 99") {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestDecodeRejectsTruncatedAndInconsistent(t *testing.T) {
	data, err := Encode(&Record{UserID: "u1", CurrentSessionID: "sid"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, n := range []int{0, 1, 5, len(data) - 1} {
		if _, err := Decode(data[:n]); !errors.Is(err, ErrRecordCorrupt) {
			t.Fatalf("truncated at %d: expected ErrRecordCorrupt, got %v", n, err)
		}
	}

	locked := encodeV1(t, &Record{UserID: "u1", IsLocked: true})
	if _, err := Decode(locked); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("locked without lockoutUntil must be corrupt, got %v", err)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Encode(&Record{UserID: strings.Repeat("x", 256)}); err == nil {
		t.Fatalf("expected long user id to fail")
	}
	if _, err := Encode(&Record{UserID: "u1", FailedLoginAttempts: -1}); err == nil {
		t.Fatalf("expected negative count to fail")
	}
}
