package ws

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// ========== MockBoardService ==========
// 实现 BoardService 接口，用于 Hub 和 Room 的单元测试

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

// recordingFanout 记录发布的消息
type recordingFanout struct {
	NoopFanout
	published chan []byte
}

func newRecordingFanout() *recordingFanout {
	return &recordingFanout{published: make(chan []byte, 16)}
}

func (f *recordingFanout) Publish(_ context.Context, _ string, msg []byte) error {
	f.published <- msg
	return nil
}
