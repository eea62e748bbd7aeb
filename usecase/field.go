package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErrors "board-go-server/domain/errors"
)

// FieldUpdate 字段修改的确认结果，Value 是服务端最终写入的值
type FieldUpdate struct {
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: expected string", domainErrors.ErrInvalidFieldValue)
	}
	return s, nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("%w: expected boolean", domainErrors.ErrInvalidFieldValue)
	}
	return b, nil
}

// splitField "permissions.whoCanChat" -> ("permissions", "whoCanChat")
func splitField(path string) (head, rest string) {
	head, rest, _ = strings.Cut(path, ".")
	return head, rest
}
