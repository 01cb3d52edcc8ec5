package api

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientMessageID 生成 client_message_id：m_ 加 8 位小写十六进制
func NewClientMessageID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "m_" + hex[:8]
}
