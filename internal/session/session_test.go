package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "board-go-server/domain/errors"
	"board-go-server/internal/client"
	"board-go-server/internal/collection"
	"board-go-server/internal/notify"
	"board-go-server/internal/optimistic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAPI 最小化的服务端：通知、看板详情、字段修改和 /ws
type fakeAPI struct {
	patches atomic.Int32
	conns   chan *websocket.Conn
}

func newSession(t *testing.T, id Identity) (*Session, *fakeAPI, *notify.ChannelSink) {
	t.Helper()
	api := &fakeAPI{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	router := gin.New()
	router.GET("/api/notifications", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": []gin.H{}, "unread": 2})
	})
	router.POST("/api/notifications/:id/read", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/api/boards/:boardId", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"boardId": c.Param("boardId"), "title": "Board " + c.Param("boardId"), "visibility": "public"})
	})
	router.PATCH("/api/boards/:boardId/fields", func(c *gin.Context) {
		api.patches.Add(1)
		c.JSON(http.StatusOK, gin.H{"path": "title", "value": "Renamed", "updatedAt": time.Now()})
	})
	router.PATCH("/api/users/:userId/fields", func(c *gin.Context) {
		api.patches.Add(1)
		c.JSON(http.StatusOK, gin.H{"path": "role", "value": "teacher", "updatedAt": time.Now()})
	})
	router.GET("/api/users", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": []gin.H{
			{"id": "u2", "name": "Bob", "role": "student", "updatedAt": time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
			{"id": "u3", "name": "Carol", "role": "student", "updatedAt": time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		}})
	})
	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		api.conns <- conn
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL, "tok", client.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	sink := notify.NewChannelSink(16)
	s, err := Start(context.Background(), Config{Client: cl, Sink: sink, Language: notify.LangEnglish}, id)
	require.NoError(t, err)
	t.Cleanup(s.End)
	return s, api, sink
}

func TestStart_RequiresIdentity(t *testing.T) {
	cl, err := client.New("http://localhost", "")
	require.NoError(t, err)

	_, err = Start(context.Background(), Config{Client: cl}, Identity{})
	assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)
}

func TestSession_StartLoadsUnreadAndMarkRead(t *testing.T) {
	s, _, _ := newSession(t, Identity{UserID: "u1", Role: "student"})

	assert.Equal(t, int64(2), s.Unread())
	assert.Equal(t, LayoutGrid, s.Layout())

	require.NoError(t, s.MarkRead(context.Background(), "n1"))
	assert.Equal(t, int64(1), s.Unread())
}

func TestSession_SwitchClosesPreviousSubscription(t *testing.T) {
	s, api, _ := newSession(t, Identity{UserID: "u1"})

	first, err := s.Switch(context.Background(), "b1")
	require.NoError(t, err)
	conn1 := <-api.conns
	defer conn1.Close()
	assert.Equal(t, "b1", s.Active())

	title, ok := s.Store().Field("b1", "title")
	require.True(t, ok)
	assert.Equal(t, "Board b1", title)

	second, err := s.Switch(context.Background(), "b2")
	require.NoError(t, err)
	conn2 := <-api.conns
	defer conn2.Close()

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("previous subscription should be closed")
	}
	assert.Equal(t, "b2", s.Active())
	assert.Equal(t, "b2", second.BoardID())
}

func TestSession_EndTearsDown(t *testing.T) {
	s, api, _ := newSession(t, Identity{UserID: "u1"})

	sub, err := s.Switch(context.Background(), "b1")
	require.NoError(t, err)
	conn := <-api.conns
	defer conn.Close()

	s.End()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription should be closed when the session ends")
	}
	assert.Empty(t, s.Active())

	_, err = s.Switch(context.Background(), "b2")
	assert.ErrorIs(t, err, ErrEnded)

	_, err = s.UpdateBoardField(context.Background(), "b1", "title", "x", "title")
	assert.ErrorIs(t, err, ErrEnded)
	assert.Zero(t, api.patches.Load())
}

func TestSession_UpdateBoardFieldConfirmed(t *testing.T) {
	s, api, _ := newSession(t, Identity{UserID: "u1"})

	_, err := s.Switch(context.Background(), "b1")
	require.NoError(t, err)
	conn := <-api.conns
	defer conn.Close()

	intent, err := s.UpdateBoardField(context.Background(), "b1", "title", "Renamed", "title")
	require.NoError(t, err)
	require.NoError(t, intent.Wait(context.Background()))

	title, _ := s.Store().Field("b1", "title")
	assert.Equal(t, "Renamed", title)
	assert.Equal(t, int32(1), api.patches.Load())
}

func TestSession_NonAdminUserEditDeniedLocally(t *testing.T) {
	s, api, sink := newSession(t, Identity{UserID: "u1", Role: "teacher"})
	s.SetLanguage(notify.LangChinese)
	s.Store().Put("u2", map[string]any{"role": "student"}, time.Time{})

	_, err := s.UpdateUserField(context.Background(), "u2", "role", "teacher", "角色")
	assert.ErrorIs(t, err, domainErrors.ErrPermissionDenied)

	role, _ := s.Store().Field("u2", "role")
	assert.Equal(t, "student", role)
	assert.Zero(t, api.patches.Load())

	select {
	case n := <-sink.C:
		assert.Equal(t, notify.KindPermission, n.Kind)
		assert.Equal(t, "你没有权限修改角色", n.Body)
	case <-time.After(time.Second):
		t.Fatal("expected a permission notice")
	}
}

func TestSession_BoardEditByNonOwnerDeniedLocally(t *testing.T) {
	s, api, sink := newSession(t, Identity{UserID: "u1", Role: "student"})
	s.Store().Put("b9", map[string]any{"title": "Theirs", "ownerId": "u2"}, time.Time{})

	_, err := s.UpdateBoardField(context.Background(), "b9", "title", "Mine now", "title")
	assert.ErrorIs(t, err, domainErrors.ErrPermissionDenied)

	title, _ := s.Store().Field("b9", "title")
	assert.Equal(t, "Theirs", title)
	assert.Zero(t, api.patches.Load())

	select {
	case n := <-sink.C:
		assert.Equal(t, notify.KindPermission, n.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a permission notice")
	}
}

func TestSession_BoardEditByAdminReachesServer(t *testing.T) {
	s, api, _ := newSession(t, Identity{UserID: "u1", Role: "admin"})
	s.Store().Put("b9", map[string]any{"title": "Theirs", "ownerId": "u2"}, time.Time{})

	intent, err := s.UpdateBoardField(context.Background(), "b9", "title", "Renamed", "title")
	require.NoError(t, err)
	require.NoError(t, intent.Wait(context.Background()))
	assert.Equal(t, int32(1), api.patches.Load())
}

func TestSession_WatchUsersFollowsMutation(t *testing.T) {
	s, _, _ := newSession(t, Identity{UserID: "u1", Role: "admin"})

	view, _ := s.WatchUsers()
	require.NoError(t, view.LoadInitial(context.Background(), collection.Filter{}))
	require.Len(t, view.Items(), 2)

	intent, err := s.UpdateUserField(context.Background(), "u2", "role", "teacher", "role")
	require.NoError(t, err)
	require.NoError(t, intent.Wait(context.Background()))

	row, ok := view.Item("u2")
	require.True(t, ok)
	assert.Equal(t, "teacher", row.Fields["role"])
	other, _ := view.Item("u3")
	assert.Equal(t, "student", other.Fields["role"])

	s.End()
	assert.ErrorIs(t, view.LoadInitial(context.Background(), collection.Filter{}), collection.ErrClosed)
}

func TestSession_WatchReloadKeepsPendingEdit(t *testing.T) {
	s, _, _ := newSession(t, Identity{UserID: "u1", Role: "admin"})

	view, stop := s.WatchUsers()
	defer stop()
	require.NoError(t, view.LoadInitial(context.Background(), collection.Filter{}))

	release := make(chan struct{})
	intent, err := s.Mutator().Apply(context.Background(), optimistic.Mutation{
		TargetID:  "u2",
		FieldPath: "role",
		Next:      "teacher",
		Persist: func(ctx context.Context) (*optimistic.Confirmed, error) {
			<-release
			return nil, nil
		},
	})
	require.NoError(t, err)

	// 重新拉取得到未变化的行，列表仍显示在途的值
	require.NoError(t, view.LoadInitial(context.Background(), collection.Filter{}))
	row, _ := view.Item("u2")
	assert.Equal(t, "teacher", row.Fields["role"])

	close(release)
	require.NoError(t, intent.Wait(context.Background()))
	row, _ = view.Item("u2")
	assert.Equal(t, "teacher", row.Fields["role"])
}
