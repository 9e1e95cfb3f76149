package realtime_test

import (
	"testing"

	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	update, err := realtime.DecodeNotification(`{"user_id":"u-1","worker_id":"w-1","approval_status":"rejected","approval_rejection_reason":"blurry id"}`)
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalUpdate{
		UserID:          "u-1",
		WorkerID:        "w-1",
		Status:          union.ApprovalRejected,
		RejectionReason: "blurry id",
	}, update)
}

func TestDecodeNotificationRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       `approved`,
		"missing user":   `{"approval_status":"approved"}`,
		"unknown status": `{"user_id":"u-1","approval_status":"banned"}`,
		"empty status":   `{"user_id":"u-1"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := realtime.DecodeNotification(payload)
			assert.Error(t, err)
		})
	}
}
