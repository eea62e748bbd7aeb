package notify

import "fmt"

// Language 界面语言
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// ParseLanguage 解析语言，未知值回退到英文
func ParseLanguage(s string) Language {
	switch s {
	case "zh", "zh-CN", "zh_CN", "zh-Hans":
		return LangChinese
	default:
		return LangEnglish
	}
}

// MessageKey 文案键
type MessageKey string

const (
	MsgMutationFailed   MessageKey = "mutation.failed"
	MsgMutationDenied   MessageKey = "mutation.denied"
	MsgMutationTimeout  MessageKey = "mutation.timeout"
	MsgFetchFailed      MessageKey = "fetch.failed"
	MsgCannotAddNotes   MessageKey = "board.cannotAddNotes"
	MsgSubscriptionLost MessageKey = "subscription.lost"
	MsgBoardDeleted     MessageKey = "board.deleted"
	MsgNotesConflict    MessageKey = "board.notesConflict"
)

// Catalog 语言 -> 文案模板
type Catalog map[Language]map[MessageKey]string

// DefaultCatalog 内置文案
var DefaultCatalog = Catalog{
	LangEnglish: {
		MsgMutationFailed:   "Could not save %s: %s",
		MsgMutationDenied:   "You don't have permission to change %s",
		MsgMutationTimeout:  "Saving %s timed out, the change was undone",
		MsgFetchFailed:      "Could not load %s: %s",
		MsgCannotAddNotes:   "You don't have permission to add notes",
		MsgSubscriptionLost: "Live updates for %s were interrupted",
		MsgBoardDeleted:     "Board %s was deleted",
		MsgNotesConflict:    "Someone else edited the notes first, your change was not applied",
	},
	LangChinese: {
		MsgMutationFailed:   "保存%s失败：%s",
		MsgMutationDenied:   "你没有权限修改%s",
		MsgMutationTimeout:  "保存%s超时，修改已撤销",
		MsgFetchFailed:      "加载%s失败：%s",
		MsgCannotAddNotes:   "你没有权限添加便利贴",
		MsgSubscriptionLost: "%s 的实时更新已中断",
		MsgBoardDeleted:     "看板 %s 已被删除",
		MsgNotesConflict:    "便利贴已被他人修改，你的改动未生效",
	},
}

// Format 渲染文案；目标语言缺失时回退英文，英文也缺失时返回键名
func (c Catalog) Format(lang Language, key MessageKey, args ...any) string {
	tmpl, ok := c[lang][key]
	if !ok {
		tmpl, ok = c[LangEnglish][key]
	}
	if !ok {
		return string(key)
	}
	return fmt.Sprintf(tmpl, args...)
}
