package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatLine(t *testing.T) {
	line := FormatLine(ReservationConfirmedEvent{
		Kind:        "room_group",
		TxRef:       "TX-MULTI-4_5_6-1717200000",
		BookingIDs:  []uint64{4, 5, 6},
		HolderID:    9,
		AmountCents: 45000,
		Currency:    "ETB",
		ConfirmedAt: "2024-06-01T00:00:00Z",
	})
	assert.Equal(t, "[2024-06-01T00:00:00Z] Booking confirmed | kind=room_group | tx_ref=TX-MULTI-4_5_6-1717200000 | user_id=9 | booking_ids=[4,5,6] | total=45000 cents ETB\n", line)
}

func TestConsumer_HandleMessageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")
	c := NewConsumer("", path, zap.NewNop())

	for _, id := range []uint64{1, 2} {
		body, err := json.Marshal(ReservationConfirmedEvent{Kind: "room", TxRef: "TX-1-1", BookingIDs: []uint64{id}})
		require.NoError(t, err)
		require.NoError(t, c.HandleMessage(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "booking_ids=[2]")

	assert.Error(t, c.HandleMessage([]byte("not json")))
}
