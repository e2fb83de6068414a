package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	recordFormatVersionCurrent = 2
	recordFormatVersionV1      = 1
)

const flagLocked byte = 1 << 0

// ErrRecordCorrupt is returned when a stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Encode serializes r in the current format.
//
// v1: uid, role, sid, sessionExpiresAt, lastTokenRefresh, failedAttempts, flags,
// lockoutUntil. v2 appends username and lastFailedLogin.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeString(&buf, r.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, r.Role, "role"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, r.CurrentSessionID, "sessionID"); err != nil {
		return nil, err
	}
	writeTime(&buf, r.SessionExpiresAt)
	writeTime(&buf, r.LastTokenRefresh)

	if r.FailedLoginAttempts < 0 {
		return nil, errors.New("negative failed login count")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(r.FailedLoginAttempts)); err != nil {
		return nil, err
	}
	var flags byte
	if r.IsLocked {
		flags |= flagLocked
	}
	buf.WriteByte(flags)
	writeTime(&buf, r.LockoutUntil)

	if err := writeString(&buf, r.Username, "username"); err != nil {
		return nil, err
	}
	writeTime(&buf, r.LastFailedLogin)

	return buf.Bytes(), nil
}

// Decode parses any supported format version.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	if version != recordFormatVersionCurrent && version != recordFormatVersionV1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrRecordCorrupt, version)
	}

	r := &Record{}
	if r.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.Role, err = readString(reader); err != nil {
		return nil, err
	}
	if r.CurrentSessionID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.SessionExpiresAt, err = readTime(reader); err != nil {
		return nil, err
	}
	if r.LastTokenRefresh, err = readTime(reader); err != nil {
		return nil, err
	}

	var failed uint32
	if err := binary.Read(reader, binary.BigEndian, &failed); err != nil {
		return nil, ErrRecordCorrupt
	}
	r.FailedLoginAttempts = int(failed)
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	r.IsLocked = flags&flagLocked != 0
	if r.LockoutUntil, err = readTime(reader); err != nil {
		return nil, err
	}

	if version == recordFormatVersionCurrent {
		if r.Username, err = readString(reader); err != nil {
			return nil, err
		}
		if r.LastFailedLogin, err = readTime(reader); err != nil {
			return nil, err
		}
	}

	if r.IsLocked && r.LockoutUntil.IsZero() {
		return nil, ErrRecordCorrupt
	}
	return r, nil
}

func writeString(buf *bytes.Buffer, s, field string) error {
	if len(s) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrRecordCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrRecordCorrupt
	}
	return string(b), nil
}

// Zero times are stored as 0.
func writeTime(buf *bytes.Buffer, t time.Time) {
	var v int64
	if !t.IsZero() {
		v = t.UnixNano()
	}
	_ = binary.Write(buf, binary.BigEndian, v)
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var v int64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return time.Time{}, ErrRecordCorrupt
	}
	if v == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, v).UTC(), nil
}
