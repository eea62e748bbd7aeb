package optimistic

import (
	"errors"
	"fmt"

	domainErrors "board-go-server/domain/errors"
)

var (
	// ErrInvalidPath 字段路径格式错误
	ErrInvalidPath = errors.New("invalid field path")
	// ErrUnknownTarget 本地不存在该记录（未订阅或已被删除）
	ErrUnknownTarget = errors.New("unknown mutation target")
	// ErrNoPersist 缺少远端写入函数
	ErrNoPersist = errors.New("mutation has no persist function")
	// ErrPersistTimeout 远端写入超时，已强制回滚
	ErrPersistTimeout = errors.New("persist timed out")
)

// PersistenceError 远端写入失败（已回滚）
type PersistenceError struct {
	TargetID  string
	FieldPath string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s.%s: %v", e.TargetID, e.FieldPath, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPermissionDenied 判断错误链中是否为权限不足
func IsPermissionDenied(err error) bool {
	return errors.Is(err, domainErrors.ErrPermissionDenied)
}
