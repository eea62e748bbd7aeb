package errors

import "errors"

// ================= 业务领域错误定义 =================
// 所有业务逻辑相关的错误统一在此定义，避免跨包重复定义

// ErrBoardNotFound 看板不存在错误
// 当尝试操作一个不存在于数据库中的看板时返回此错误
var ErrBoardNotFound = errors.New("board not found in database")

// ErrBoardAlreadyExists 看板 ID 已被占用
var ErrBoardAlreadyExists = errors.New("board already exists")

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// ErrNotificationNotFound 通知不存在
var ErrNotificationNotFound = errors.New("notification not found")

// ErrOptimisticLock 乐观锁冲突错误
// 当数据库中的版本与期望版本不匹配时返回此错误
var ErrOptimisticLock = errors.New("optimistic lock error: version mismatch, please refresh and retry")

// ErrRoomClosing 房间正在关闭（刷盘中），客户端应稍后重试
var ErrRoomClosing = errors.New("room is closing, please retry")

// ErrPermissionDenied 权限不足
// 服务端返回 403，客户端据此展示"权限"样式的提示而不是错误提示
var ErrPermissionDenied = errors.New("permission denied")

// ErrUnauthorized 未认证
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidFieldPath 不允许修改的字段路径
var ErrInvalidFieldPath = errors.New("invalid field path")

// ErrInvalidFieldValue 字段值不合法
var ErrInvalidFieldValue = errors.New("invalid field value")

// ErrInvalidCursor 分页游标无法解析
var ErrInvalidCursor = errors.New("invalid cursor")
