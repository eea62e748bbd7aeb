package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	domainErrors "board-go-server/domain/errors"
)

// pageCursor 不透明游标：排序键 + 主键，保证翻页稳定
type pageCursor struct {
	Key string `json:"k"`
	ID  string `json:"i"`
}

func encodeCursor(key, id string) string {
	data, _ := json.Marshal(pageCursor{Key: key, ID: id})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(raw string) (*pageCursor, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidCursor, err)
	}
	var c pageCursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return nil, domainErrors.ErrInvalidCursor
	}
	return &c, nil
}
