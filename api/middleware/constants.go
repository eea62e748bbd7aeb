package middleware

// Context 中使用的 key
const (
	ContextKeyUserID    = "userID"    // Clerk user_id
	ContextKeySessionID = "sessionID" // Clerk session id，用于审计日志
)
