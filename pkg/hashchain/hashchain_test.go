package hashchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntryHashDeterministic(t *testing.T) {
	chainer := New("secret")
	entry := Entry{
		AdmissionID: "adm-1",
		Action:      "approveAdmission",
		FromStatus:  "PENDING",
		ToStatus:    "APPROVED",
		ActorID:     "user-1",
		ActorRole:   "ADMIN",
		OccurredAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PrevHash:    Genesis,
	}

	first, err := chainer.EntryHash(entry)
	require.NoError(t, err)
	require.Len(t, first, 64)

	second, err := chainer.EntryHash(entry)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEntryHashBindsPredecessor(t *testing.T) {
	chainer := New("secret")
	entry := Entry{
		AdmissionID: "adm-1",
		Action:      "approveAdmission",
		FromStatus:  "PENDING",
		ToStatus:    "APPROVED",
		ActorRole:   "ADMIN",
		OccurredAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PrevHash:    Genesis,
	}

	base, err := chainer.EntryHash(entry)
	require.NoError(t, err)

	entry.PrevHash = base
	linked, err := chainer.EntryHash(entry)
	require.NoError(t, err)
	require.NotEqual(t, base, linked)
}

func TestEntryHashKeyed(t *testing.T) {
	entry := Entry{
		AdmissionID: "adm-1",
		Action:      "dropStudent",
		FromStatus:  "ACTIVE",
		ToStatus:    "DROPPED",
		ActorRole:   "SUPERADMIN",
		OccurredAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		PrevHash:    Genesis,
	}

	one, err := New("key-one").EntryHash(entry)
	require.NoError(t, err)
	other, err := New("key-two").EntryHash(entry)
	require.NoError(t, err)
	require.NotEqual(t, one, other)
}

func TestEntryHashTruncatesToMicroseconds(t *testing.T) {
	chainer := New("secret")
	entry := Entry{
		AdmissionID: "adm-1",
		Action:      "collectPayment",
		FromStatus:  "PAYMENT_DUE",
		ToStatus:    "ACTIVE",
		ActorRole:   "FINANCE",
		OccurredAt:  time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC),
		PrevHash:    Genesis,
	}

	written, err := chainer.EntryHash(entry)
	require.NoError(t, err)

	entry.OccurredAt = entry.OccurredAt.Truncate(time.Microsecond)
	reloaded, err := chainer.EntryHash(entry)
	require.NoError(t, err)
	require.Equal(t, written, reloaded)
}
