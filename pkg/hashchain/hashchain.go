package hashchain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Genesis is the prev-hash sentinel for the first entry of a record's chain.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is the hashed view of one transition log row.
type Entry struct {
	AdmissionID string
	Action      string
	FromStatus  string
	ToStatus    string
	ActorID     string
	ActorRole   string
	OccurredAt  time.Time
	PrevHash    string
}

// Chainer computes keyed BLAKE2b hashes linking transition entries.
type Chainer struct {
	key []byte
}

// New builds a chainer from the configured key. Keys longer than 64 bytes
// are rejected by blake2b at hash time.
func New(key string) *Chainer {
	return &Chainer{key: []byte(key)}
}

// EntryHash hashes one entry, binding it to its predecessor via PrevHash.
// Timestamps are hashed at microsecond precision; timestamptz loses
// nanoseconds on the round trip.
func (c *Chainer) EntryHash(e Entry) (string, error) {
	h, err := blake2b.New256(c.key)
	if err != nil {
		return "", fmt.Errorf("init hash: %w", err)
	}

	payload := strings.Join([]string{
		e.AdmissionID,
		e.Action,
		e.FromStatus,
		e.ToStatus,
		e.ActorID,
		e.ActorRole,
		strconv.FormatInt(e.OccurredAt.UTC().UnixMicro(), 10),
		e.PrevHash,
	}, "|")

	if _, err := h.Write([]byte(payload)); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
