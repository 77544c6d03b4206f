package core

// DecodedEvent 从 "Program data:" / "Program log:" 日志中解出的事件
type DecodedEvent struct {
	TxHash    string         `json:"txHash,omitempty"`
	ProgramID string         `json:"programId,omitempty"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"` // 已规范化
}
