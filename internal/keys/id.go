package keys

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const maxUnixMillis = 1<<48 - 1

// ErrInvalidID indicates that a raw identifier is not a time-ordered UUID.
var ErrInvalidID = errors.New("keys: invalid id")

// IDProvider issues time-ordered identifiers for a given instant.
type IDProvider interface {
	NewID(at time.Time) (string, error)
}

type uuidProvider struct {
	random io.Reader
}

// NewIDProvider constructs an IDProvider that issues UUIDv7 identifiers backed by crypto/rand.
func NewIDProvider() IDProvider {
	return &uuidProvider{random: rand.Reader}
}

func (p *uuidProvider) NewID(at time.Time) (string, error) {
	return newIDFromReader(p.random, at)
}

// NewID returns a UUIDv7 string whose timestamp bits encode at.
func NewID(at time.Time) (string, error) {
	return newIDFromReader(rand.Reader, at)
}

func newIDFromReader(random io.Reader, at time.Time) (string, error) {
	var value uuid.UUID
	putMillis(&value, at)
	if _, err := io.ReadFull(random, value[6:]); err != nil {
		return "", fmt.Errorf("keys: read random bits: %w", err)
	}
	value[6] = 0x70 | (value[6] & 0x0f)
	value[8] = 0x80 | (value[8] & 0x3f)
	return value.String(), nil
}

// ParseID validates raw input as a UUIDv7 and returns its canonical form.
func ParseID(raw string) (string, error) {
	value, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if value.Version() != 7 {
		return "", fmt.Errorf("%w: version %d", ErrInvalidID, value.Version())
	}
	return value.String(), nil
}

// TimestampOf extracts the creation instant (millisecond precision, UTC) from an id.
func TimestampOf(id string) (time.Time, error) {
	value, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var buf [8]byte
	copy(buf[2:], value[:6])
	millis := int64(binary.BigEndian.Uint64(buf[:]))
	return time.UnixMilli(millis).UTC(), nil
}

// MinIDAt returns the smallest id string carrying the timestamp of t.
func MinIDAt(t time.Time) string {
	var value uuid.UUID
	putMillis(&value, t)
	return value.String()
}

// MaxIDAt returns the largest id string carrying the timestamp of t.
func MaxIDAt(t time.Time) string {
	var value uuid.UUID
	putMillis(&value, t)
	for i := 6; i < len(value); i++ {
		value[i] = 0xff
	}
	return value.String()
}

func putMillis(value *uuid.UUID, t time.Time) {
	millis := t.UnixMilli()
	if millis < 0 {
		millis = 0
	}
	if millis > maxUnixMillis {
		millis = maxUnixMillis
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(millis))
	copy(value[:6], buf[2:])
}
