package usecase

import (
	"time"

	"board-go-server/domain/entity"
	"board-go-server/domain/repository"

	"github.com/stretchr/testify/mock"
)

// ========== MockBoardRepository ==========
// 实现 repository.BoardRepository 接口，用于 BoardUseCase 的单元测试

type MockBoardRepository struct {
	mock.Mock
}

func (m *MockBoardRepository) GetByBoardID(boardID string) (*entity.Board, error) {
	args := m.Called(boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Board), args.Error(1)
}

func (m *MockBoardRepository) Create(board *entity.Board) error {
	args := m.Called(board)
	return args.Error(0)
}

func (m *MockBoardRepository) UpdateContent(boardID string, content []byte, oldVersion, newVersion int64) error {
	args := m.Called(boardID, content, oldVersion, newVersion)
	return args.Error(0)
}

func (m *MockBoardRepository) UpdateFields(boardID string, updates map[string]any) (time.Time, error) {
	args := m.Called(boardID, updates)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockBoardRepository) List(query repository.BoardQuery) (repository.PageResult[entity.Board], error) {
	args := m.Called(query)
	return args.Get(0).(repository.PageResult[entity.Board]), args.Error(1)
}

func (m *MockBoardRepository) Delete(boardID string) error {
	args := m.Called(boardID)
	return args.Error(0)
}

// ========== MockUserRepository ==========

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(userID string) (*entity.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) UpdateFields(userID string, updates map[string]any) (time.Time, error) {
	args := m.Called(userID, updates)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockUserRepository) List(query repository.UserQuery) (repository.PageResult[entity.User], error) {
	args := m.Called(query)
	return args.Get(0).(repository.PageResult[entity.User]), args.Error(1)
}

func (m *MockUserRepository) Delete(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

// ========== MockNotificationRepository ==========

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(notification *entity.Notification) error {
	args := m.Called(notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListByUser(userID string, unreadOnly bool, limit int) ([]entity.Notification, error) {
	args := m.Called(userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(userID, notificationID string) error {
	args := m.Called(userID, notificationID)
	return args.Error(0)
}

func (m *MockNotificationRepository) CountUnread(userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

// ========== MockBoardService (用于 Hub) ==========
// BoardUseCase 需要真实的 Hub，而 Hub 需要 BoardService

type MockBoardService struct {
	mock.Mock
}

func (m *MockBoardService) GetBoardState(boardID string) ([]byte, int64, error) {
	args := m.Called(boardID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(int64), args.Error(2)
}

func (m *MockBoardService) BoardExists(boardID string) (bool, error) {
	args := m.Called(boardID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBoardService) SaveBoardState(boardID string, state []byte, oldVersion, newVersion int64) error {
	args := m.Called(boardID, state, oldVersion, newVersion)
	return args.Error(0)
}

// stubUsers 固定的用户表
type stubUsers map[string]*entity.User

func (s stubUsers) Lookup(userID string) (*entity.User, error) {
	return s[userID], nil
}
