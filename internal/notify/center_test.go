package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect() (*[]Notice, Sink) {
	var got []Notice
	return &got, SinkFunc(func(n Notice) { got = append(got, n) })
}

func TestCenter_LocalizesByActiveLanguage(t *testing.T) {
	got, sink := collect()
	center := NewCenter(sink, LangEnglish)

	center.Notify(Notice{Kind: KindError, Key: MsgMutationFailed, Args: []any{"role", "boom"}, Err: errors.New("boom")})
	center.SetLanguage(LangChinese)
	center.Notify(Notice{Kind: KindPermission, Key: MsgCannotAddNotes})

	require.Len(t, *got, 2)
	assert.Equal(t, "Could not save role: boom", (*got)[0].Body)
	assert.Equal(t, "你没有权限添加便利贴", (*got)[1].Body)
	assert.Equal(t, KindPermission, (*got)[1].Kind)
	assert.False(t, (*got)[1].At.IsZero())
}

func TestCenter_DedupByTag(t *testing.T) {
	got, sink := collect()
	center := NewCenter(sink, LangEnglish, WithDedupWindow(50*time.Millisecond))

	center.Push("New message", "hi", "chat:42")
	center.Push("New message", "hi again", "chat:42")
	center.Push("New message", "other", "chat:7")
	assert.Len(t, *got, 2)

	time.Sleep(80 * time.Millisecond)
	center.Push("New message", "later", "chat:42")
	assert.Len(t, *got, 3)
}

func TestCenter_SuppressesActiveConversation(t *testing.T) {
	got, sink := collect()
	center := NewCenter(sink, LangEnglish)

	center.SetActive("chat:42")
	center.Push("New message", "hi", "chat:42")
	assert.Empty(t, *got)

	center.Reset()
	center.Push("New message", "hi", "chat:42")
	assert.Len(t, *got, 1)
}

func TestCatalog_FallsBackToEnglishThenKey(t *testing.T) {
	c := Catalog{LangEnglish: {MsgFetchFailed: "load %s"}}
	assert.Equal(t, "load boards", c.Format(LangChinese, MsgFetchFailed, "boards"))
	assert.Equal(t, "mutation.failed", c.Format(LangChinese, MsgMutationFailed))
	assert.Equal(t, LangChinese, ParseLanguage("zh-CN"))
	assert.Equal(t, LangEnglish, ParseLanguage("fr"))
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Deliver(Notice{Body: "a"})
	sink.Deliver(Notice{Body: "b"})
	assert.Len(t, sink.C, 1)
	assert.Equal(t, "a", (<-sink.C).Body)
}
