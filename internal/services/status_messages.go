package services

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/commerce/internal/domain"
)

// StatusMessage is the title and description recorded with a history entry.
type StatusMessage struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

var fallbackStatusMessage = StatusMessage{
	Title:       "Cập nhật trạng thái",
	Description: "Trạng thái đơn hàng đã thay đổi.",
}

var defaultStatusMessages = map[domain.OrderStatus]StatusMessage{
	domain.OrderStatusPending: {
		Title:       "Đơn hàng đã được đặt.",
		Description: "Đặt hàng thành công.",
	},
	domain.OrderStatusPackaging: {
		Title:       "Đơn hàng đang được đóng gói",
		Description: "Chúng tôi đang chuẩn bị sản phẩm của bạn để giao hàng.",
	},
	domain.OrderStatusShipped: {
		Title:       "Đơn hàng đang trên đường giao",
		Description: "Đơn hàng của bạn đã được giao cho đơn vị vận chuyển.",
	},
	domain.OrderStatusDelivered: {
		Title:       "Đơn hàng đã giao thành công",
		Description: "Bạn đã nhận được đơn hàng. Cảm ơn bạn đã mua sắm!",
	},
	domain.OrderStatusReturnRequested: {
		Title:       "Yêu cầu trả hàng",
		Description: "Bạn đã yêu cầu trả hàng. Hệ thống đang xem xét yêu cầu của bạn.",
	},
	domain.OrderStatusReturnApproved: {
		Title:       "Trả hàng được chấp nhận",
		Description: "Yêu cầu trả hàng của bạn đã được duyệt. Vui lòng gửi sản phẩm về kho.",
	},
	domain.OrderStatusReturnRejected: {
		Title:       "Yêu cầu trả hàng bị từ chối.",
		Description: "Yêu cầu trả hàng của bạn đã bị từ chối. Vui lòng liên hệ để biết thêm chi tiết.",
	},
	domain.OrderStatusReturned: {
		Title:       "Sản phẩm đã được trả về",
		Description: "Kho hàng đã nhận được sản phẩm trả về của bạn.",
	},
	domain.OrderStatusRefundProcessed: {
		Title:       "Hoàn tiền thành công",
		Description: "Số tiền hoàn lại đã được xử lý. Vui lòng kiểm tra tài khoản ngân hàng của bạn.",
	},
	domain.OrderStatusCanceled: {
		Title:       "Đơn hàng đã bị hủy",
		Description: "Đơn hàng của bạn đã bị hủy. Nếu có bất kỳ thắc mắc nào, vui lòng liên hệ hỗ trợ.",
	},
}

type statusPair struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

// StatusMessages resolves history titles. Values are immutable once built.
type StatusMessages struct {
	byStatus map[domain.OrderStatus]StatusMessage
	byPair   map[statusPair]StatusMessage
}

// DefaultStatusMessages returns the built-in message table.
func DefaultStatusMessages() StatusMessages {
	return StatusMessages{
		byStatus: maps.Clone(defaultStatusMessages),
		byPair:   map[statusPair]StatusMessage{},
	}
}

type statusMessageFile struct {
	Statuses    map[string]StatusMessage `yaml:"statuses"`
	Transitions []struct {
		From          string `yaml:"from"`
		To            string `yaml:"to"`
		StatusMessage `yaml:",inline"`
	} `yaml:"transitions"`
}

// ParseStatusMessages layers YAML overrides on top of the defaults. Status
// entries replace a target status message; transition entries apply to one
// from/to pair only.
func ParseStatusMessages(data []byte) (StatusMessages, error) {
	var file statusMessageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return StatusMessages{}, fmt.Errorf("status messages: decode: %w", err)
	}

	out := DefaultStatusMessages()
	for raw, msg := range file.Statuses {
		status := domain.OrderStatus(strings.TrimSpace(raw))
		if !status.Valid() {
			return StatusMessages{}, fmt.Errorf("status messages: unknown status %q", raw)
		}
		out.byStatus[status] = msg
	}
	for _, entry := range file.Transitions {
		from := domain.OrderStatus(strings.TrimSpace(entry.From))
		to := domain.OrderStatus(strings.TrimSpace(entry.To))
		if !from.Valid() || !to.Valid() {
			return StatusMessages{}, fmt.Errorf("status messages: unknown transition %q -> %q", entry.From, entry.To)
		}
		out.byPair[statusPair{from: from, to: to}] = entry.StatusMessage
	}
	return out, nil
}

// LoadStatusMessages reads overrides from path. An empty path yields the defaults.
func LoadStatusMessages(path string) (StatusMessages, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultStatusMessages(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return StatusMessages{}, fmt.Errorf("status messages: %w", err)
	}
	return ParseStatusMessages(data)
}

// Lookup returns the message for a change from previous (nil on creation) to next.
func (m StatusMessages) Lookup(previous *domain.OrderStatus, next domain.OrderStatus) StatusMessage {
	if previous != nil {
		if msg, ok := m.byPair[statusPair{from: *previous, to: next}]; ok {
			return msg
		}
	}
	if msg, ok := m.byStatus[next]; ok {
		return msg
	}
	return fallbackStatusMessage
}
