package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/commerce/internal/domain"
)

func TestDefaultStatusMessagesCoverEveryStatus(t *testing.T) {
	messages := DefaultStatusMessages()
	for _, status := range domain.OrderStatuses() {
		msg := messages.Lookup(nil, status)
		assert.NotEqual(t, fallbackStatusMessage, msg, status)
		assert.NotEmpty(t, msg.Title, status)
	}
	assert.Equal(t, "Đơn hàng đã được đặt.", messages.Lookup(nil, domain.OrderStatusPending).Title)
}

func TestParseStatusMessagesOverrides(t *testing.T) {
	data := []byte(`
statuses:
  shipped:
    title: Đã giao cho GHN
    description: Mã vận đơn sẽ được gửi qua SMS.
transitions:
  - from: shipped
    to: canceled
    title: Giao hàng thất bại
    description: Đơn vị vận chuyển không liên lạc được với bạn.
`)
	messages, err := ParseStatusMessages(data)
	require.NoError(t, err)

	assert.Equal(t, "Đã giao cho GHN", messages.Lookup(nil, domain.OrderStatusShipped).Title)

	shipped := domain.OrderStatusShipped
	pending := domain.OrderStatusPending
	assert.Equal(t, "Giao hàng thất bại", messages.Lookup(&shipped, domain.OrderStatusCanceled).Title)
	assert.Equal(t, "Đơn hàng đã bị hủy", messages.Lookup(&pending, domain.OrderStatusCanceled).Title)

	assert.Equal(t, "Đơn hàng đã giao thành công", DefaultStatusMessages().Lookup(nil, domain.OrderStatusDelivered).Title)
}

func TestParseStatusMessagesRejectsUnknownStatus(t *testing.T) {
	_, err := ParseStatusMessages([]byte("statuses:\n  lost:\n    title: x\n"))
	require.Error(t, err)

	_, err = ParseStatusMessages([]byte("transitions:\n  - from: pending\n    to: nowhere\n"))
	require.Error(t, err)

	_, err = ParseStatusMessages([]byte("statuses: [\n"))
	require.Error(t, err)
}

func TestLoadStatusMessages(t *testing.T) {
	messages, err := LoadStatusMessages("")
	require.NoError(t, err)
	assert.Equal(t, DefaultStatusMessages().Lookup(nil, domain.OrderStatusPending), messages.Lookup(nil, domain.OrderStatusPending))

	path := filepath.Join(t.TempDir(), "status.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statuses:\n  pending:\n    title: Mới\n    description: Đơn mới\n"), 0o600))
	messages, err = LoadStatusMessages(path)
	require.NoError(t, err)
	assert.Equal(t, StatusMessage{Title: "Mới", Description: "Đơn mới"}, messages.Lookup(nil, domain.OrderStatusPending))

	_, err = LoadStatusMessages(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLookupFallsBackForUnknownStatus(t *testing.T) {
	assert.Equal(t, fallbackStatusMessage, StatusMessages{}.Lookup(nil, domain.OrderStatus("lost")))
}
