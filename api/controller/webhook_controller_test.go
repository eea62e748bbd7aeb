package controller

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"board-go-server/domain/entity"
	"board-go-server/domain/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(user *entity.User) error {
	return m.Called(user).Error(0)
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
	return m.Called(userID).Error(0)
}

type forgetRecorder []string

func (f *forgetRecorder) Forget(userID string) { *f = append(*f, userID) }

func newWebhookRouter(repo *MockUserRepository, cache UserCache, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/clerk", NewWebhookController(repo, cache, secret).HandleClerkWebhook)
	return r
}

func TestWebhook_UserCreated_UsesPrimaryEmailAndMetadataRole(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("Upsert", mock.MatchedBy(func(u *entity.User) bool {
		return u.ID == "user_1" && u.Email == "b@x.io" && u.Name == "Ada Lovelace" && u.Role == entity.RoleTeacher
	})).Return(nil)
	var forgotten forgetRecorder
	r := newWebhookRouter(repo, &forgotten, "")

	w := do(r, http.MethodPost, "/webhook/clerk", "", `{"type":"user.created","data":{
		"id":"user_1",
		"email_addresses":[{"id":"e1","email_address":"a@x.io"},{"id":"e2","email_address":"b@x.io"}],
		"primary_email_address_id":"e2",
		"first_name":"Ada","last_name":"Lovelace",
		"public_metadata":{"role":"teacher"}}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, forgetRecorder{"user_1"}, forgotten)
	repo.AssertExpectations(t)
}

func TestWebhook_UnknownRoleFallsBackToStudent(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("Upsert", mock.MatchedBy(func(u *entity.User) bool {
		return u.Role == entity.RoleStudent && u.Name == "Solo"
	})).Return(nil)
	r := newWebhookRouter(repo, nil, "")

	w := do(r, http.MethodPost, "/webhook/clerk", "", `{"type":"user.updated","data":{"id":"u","first_name":"Solo","public_metadata":{"role":"root"}}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestWebhook_StorageFailureAsksForRetry(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("Delete", "user_1").Return(errors.New("db down"))
	r := newWebhookRouter(repo, nil, "")

	w := do(r, http.MethodPost, "/webhook/clerk", "", `{"type":"user.deleted","data":{"id":"user_1"}}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	repo := new(MockUserRepository)
	r := newWebhookRouter(repo, nil, "")

	w := do(r, http.MethodPost, "/webhook/clerk", "", `{"type":"session.created","data":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertNotCalled(t, "Upsert", mock.Anything)
}

func TestWebhook_RejectsUnsignedWhenSecretConfigured(t *testing.T) {
	repo := new(MockUserRepository)
	r := newWebhookRouter(repo, nil, "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")

	w := do(r, http.MethodPost, "/webhook/clerk", "", `{"type":"user.deleted","data":{"id":"user_1"}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	repo.AssertNotCalled(t, "Delete", mock.Anything)
}
