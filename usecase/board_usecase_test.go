package usecase

import (
	"encoding/json"
	"testing"
	"time"

	"board-go-server/domain/entity"
	domainErrors "board-go-server/domain/errors"
	"board-go-server/domain/repository"
	"board-go-server/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// ========== BoardUseCase 单元测试 ==========
// 测试核心业务逻辑、内存/DB 优先级、字段修改与权限

var testUsers = stubUsers{
	"owner":     {ID: "owner", Role: entity.RoleTeacher},
	"student":   {ID: "student", Role: entity.RoleStudent},
	"admin":     {ID: "admin", Role: entity.RoleAdmin},
	"suspended": {ID: "suspended", Role: entity.RoleStudent, Suspended: true},
}

func newBoard(boardID string, permissions string) *entity.Board {
	return &entity.Board{
		BoardID:     boardID,
		Title:       "Week 3",
		Visibility:  entity.VisibilityPublic,
		Permissions: datatypes.JSON(permissions),
		Content:     datatypes.JSON(`{"notes": {}}`),
		Version:     5,
		OwnerID:     "owner",
	}
}

func newTestBoardUseCase(repo *MockBoardRepository, notifRepo *MockNotificationRepository) (*BoardUseCase, *ws.Hub, *MockBoardService) {
	svc := new(MockBoardService)
	svc.On("SaveBoardState", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	hub := ws.NewHub(svc)
	var notifications *NotificationUseCase
	if notifRepo != nil {
		notifications = NewNotificationUseCase(notifRepo)
	}
	return NewBoardUseCase(repo, testUsers, notifications, hub), hub, svc
}

// ========== GetBoard ==========

func TestBoardUseCase_GetBoard_HotPath(t *testing.T) {
	// 房间在内存中时，文档和版本以内存为准
	mockRepo := new(MockBoardRepository)
	uc, hub, svc := newTestBoardUseCase(mockRepo, nil)

	svc.On("GetBoardState", "hot").Return([]byte(`{"notes":{"n1":{"text":"live"}}}`), int64(10), nil).Once()
	_, err := hub.GetOrCreateRoom("hot")
	require.NoError(t, err)

	mockRepo.On("GetByBoardID", "hot").Return(newBoard("hot", `{}`), nil).Once()

	board, err := uc.GetBoard("hot")

	require.NoError(t, err)
	assert.Equal(t, int64(10), board.Version)
	assert.Contains(t, string(board.Content), "live")
	assert.Equal(t, "Week 3", board.Title)
}

func TestBoardUseCase_GetBoard_TableDriven(t *testing.T) {
	testCases := []struct {
		name        string
		dbBoard     *entity.Board
		dbError     error
		expectedErr error
		expectedVer int64
	}{
		{name: "Cold Path - DB success", dbBoard: newBoard("cold", `{}`), expectedVer: 5},
		{name: "Cold Path - not found", expectedErr: domainErrors.ErrBoardNotFound},
		{name: "Cold Path - DB error", dbError: assert.AnError, expectedErr: assert.AnError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockBoardRepository)
			uc, _, svc := newTestBoardUseCase(mockRepo, nil)
			mockRepo.On("GetByBoardID", "cold").Return(tc.dbBoard, tc.dbError)

			board, err := uc.GetBoard("cold")

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, board)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expectedVer, board.Version)
			}
			// 冷路径不创建房间
			svc.AssertNotCalled(t, "GetBoardState", mock.Anything)
		})
	}
}

// ========== CreateBoard ==========

func TestBoardUseCase_CreateBoard(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)

	mockRepo.On("Create", mock.MatchedBy(func(b *entity.Board) bool {
		return b.BoardID == "new-board" && b.OwnerID == "owner" && b.Version == 1
	})).Return(nil).Once()

	board, err := uc.CreateBoard("new-board", "  Retro  ", "", "owner")

	require.NoError(t, err)
	assert.Equal(t, "Retro", board.Title)
	assert.Equal(t, entity.VisibilityPublic, board.Visibility)
	assert.JSONEq(t, entity.DefaultBoardContent, string(board.Content))

	settings, err := entity.DecodeBoardSettings(board.Permissions)
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultBoardSettings(), settings)
	mockRepo.AssertExpectations(t)
}

func TestBoardUseCase_CreateBoard_GeneratesIDAndValidates(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)
	mockRepo.On("Create", mock.Anything).Return(nil)

	board, err := uc.CreateBoard("", "", entity.VisibilityPrivate, "owner")
	require.NoError(t, err)
	assert.NotEmpty(t, board.BoardID)
	assert.Equal(t, "Untitled board", board.Title)

	_, err = uc.CreateBoard("x", "t", "secret", "owner")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidFieldValue)
}

func TestBoardUseCase_CreateBoard_Duplicate(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)
	mockRepo.On("Create", mock.Anything).Return(domainErrors.ErrBoardAlreadyExists)

	board, err := uc.CreateBoard("dup", "t", "", "owner")
	assert.Nil(t, board)
	assert.ErrorIs(t, err, domainErrors.ErrBoardAlreadyExists)
}

// ========== UpdateBoardField ==========

func TestBoardUseCase_UpdateBoardField_PermissionsUpgradesLegacySchema(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)

	// v1 数据：没有 schemaVersion，也没有 whoCanAddNotes
	mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", `{"whoCanChat":"members"}`), nil)

	updatedAt := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	var written datatypes.JSON
	mockRepo.On("UpdateFields", "b1", mock.MatchedBy(func(u map[string]any) bool {
		j, ok := u["permissions"].(datatypes.JSON)
		written = j
		return ok && len(u) == 1
	})).Return(updatedAt, nil).Once()

	result, err := uc.UpdateBoardField("b1", "owner", "permissions.whoCanAddNotes", json.RawMessage(`"owner"`))

	require.NoError(t, err)
	assert.Equal(t, "permissions.whoCanAddNotes", result.Path)
	assert.Equal(t, "owner", result.Value)
	assert.Equal(t, updatedAt, result.UpdatedAt)

	settings, err := entity.DecodeBoardSettings(written)
	require.NoError(t, err)
	assert.Equal(t, entity.AudienceMembers, settings.WhoCanChat)
	assert.Equal(t, entity.AudienceOwner, settings.WhoCanAddNotes)
	assert.Contains(t, string(written), `"schemaVersion":2`)
}

func TestBoardUseCase_UpdateBoardField_AdminEditNotifiesOwner(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	notifRepo := new(MockNotificationRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, notifRepo)

	mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", `{}`), nil)
	mockRepo.On("UpdateFields", "b1", map[string]any{"title": "Renamed"}).Return(time.Now(), nil).Once()
	notifRepo.On("Create", mock.MatchedBy(func(n *entity.Notification) bool {
		return n.UserID == "owner" && n.Tag == "board:b1" && n.ID != ""
	})).Return(nil).Once()

	result, err := uc.UpdateBoardField("b1", "admin", "title", json.RawMessage(`" Renamed "`))

	require.NoError(t, err)
	assert.Equal(t, "Renamed", result.Value)
	notifRepo.AssertExpectations(t)
}

func TestBoardUseCase_UpdateBoardField_Rejections(t *testing.T) {
	testCases := []struct {
		name        string
		userID      string
		path        string
		value       string
		expectedErr error
	}{
		{name: "student is not owner", userID: "student", path: "title", value: `"x"`, expectedErr: domainErrors.ErrPermissionDenied},
		{name: "suspended user", userID: "suspended", path: "title", value: `"x"`, expectedErr: domainErrors.ErrPermissionDenied},
		{name: "anonymous", userID: "", path: "title", value: `"x"`, expectedErr: domainErrors.ErrUnauthorized},
		{name: "unknown path", userID: "owner", path: "ownerId", value: `"x"`, expectedErr: domainErrors.ErrInvalidFieldPath},
		{name: "unknown permission", userID: "owner", path: "permissions.whoCanDelete", value: `"owner"`, expectedErr: domainErrors.ErrInvalidFieldPath},
		{name: "bad audience", userID: "owner", path: "permissions.whoCanChat", value: `"nobody"`, expectedErr: domainErrors.ErrInvalidFieldValue},
		{name: "bad visibility", userID: "owner", path: "visibility", value: `"hidden"`, expectedErr: domainErrors.ErrInvalidFieldValue},
		{name: "empty title", userID: "owner", path: "title", value: `"   "`, expectedErr: domainErrors.ErrInvalidFieldValue},
		{name: "wrong type", userID: "owner", path: "title", value: `42`, expectedErr: domainErrors.ErrInvalidFieldValue},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockBoardRepository)
			uc, _, _ := newTestBoardUseCase(mockRepo, nil)
			mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", `{}`), nil)

			result, err := uc.UpdateBoardField("b1", tc.userID, tc.path, json.RawMessage(tc.value))

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.expectedErr)
			mockRepo.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything)
		})
	}
}

func TestBoardUseCase_UpdateBoardField_BoardMissing(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)
	mockRepo.On("GetByBoardID", "gone").Return(nil, nil)

	_, err := uc.UpdateBoardField("gone", "owner", "title", json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, domainErrors.ErrBoardNotFound)
}

// ========== DeleteBoard ==========

func TestBoardUseCase_DeleteBoard_ClosesRoomFirst(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, hub, svc := newTestBoardUseCase(mockRepo, nil)

	svc.On("GetBoardState", "b1").Return([]byte(`{"notes":{}}`), int64(1), nil).Once()
	_, err := hub.GetOrCreateRoom("b1")
	require.NoError(t, err)

	mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", `{}`), nil)
	mockRepo.On("Delete", "b1").Run(func(mock.Arguments) {
		assert.Nil(t, hub.GetRoom("b1"), "room must be closed before the row is deleted")
	}).Return(nil).Once()

	require.NoError(t, uc.DeleteBoard("b1", "owner"))
	mockRepo.AssertExpectations(t)
}

func TestBoardUseCase_DeleteBoard_NotOwner(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)
	mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", `{}`), nil)

	err := uc.DeleteBoard("b1", "student")
	assert.ErrorIs(t, err, domainErrors.ErrPermissionDenied)
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

// ========== ListBoards ==========

func TestBoardUseCase_ListBoards_NormalizesLimit(t *testing.T) {
	mockRepo := new(MockBoardRepository)
	uc, _, _ := newTestBoardUseCase(mockRepo, nil)

	expected := repository.PageResult[entity.Board]{Items: []entity.Board{*newBoard("b1", `{}`)}, HasMore: false}
	mockRepo.On("List", repository.BoardQuery{Search: "we", Limit: repository.MaxPageSize}).Return(expected, nil).Once()

	result, err := uc.ListBoards(repository.BoardQuery{Search: "we", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)

	_, err = uc.ListBoards(repository.BoardQuery{Visibility: "weird"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidFieldValue)
}

// ========== CanAddNotes ==========

func TestBoardUseCase_CanAddNotes(t *testing.T) {
	testCases := []struct {
		name        string
		permissions string
		userID      string
		expected    bool
	}{
		{name: "default everyone", permissions: `{}`, userID: "stranger", expected: true},
		{name: "members - known user", permissions: `{"whoCanAddNotes":"members"}`, userID: "student", expected: true},
		{name: "members - unknown user", permissions: `{"whoCanAddNotes":"members"}`, userID: "stranger", expected: false},
		{name: "owner only - student", permissions: `{"whoCanAddNotes":"owner"}`, userID: "student", expected: false},
		{name: "owner only - owner", permissions: `{"whoCanAddNotes":"owner"}`, userID: "owner", expected: true},
		{name: "owner only - admin", permissions: `{"whoCanAddNotes":"owner"}`, userID: "admin", expected: true},
		{name: "suspended", permissions: `{}`, userID: "suspended", expected: false},
		{name: "corrupt settings fall back to defaults", permissions: `not-json`, userID: "student", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockBoardRepository)
			uc, _, _ := newTestBoardUseCase(mockRepo, nil)
			mockRepo.On("GetByBoardID", "b1").Return(newBoard("b1", tc.permissions), nil)

			ok, err := uc.CanAddNotes("b1", tc.userID)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}
