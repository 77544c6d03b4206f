package core

import "fmt"

// MappedAccount 按 IDL 账户声明位置映射后的账户
type MappedAccount struct {
	Name     string `json:"name"`
	Pubkey   string `json:"pubkey"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// DecodedInstruction 解码成功的指令。InnerInstructions 由外部合并步骤填充，解码器只输出空列表
type DecodedInstruction struct {
	TxHash            string                `json:"txHash"`
	Timestamp         int64                 `json:"timestamp"`
	Name              string                `json:"name"`
	ProgramID         string                `json:"programId"`
	Accounts          []string              `json:"accounts"`
	MappedAccounts    []MappedAccount       `json:"mappedAccounts"`
	Args              map[string]any        `json:"args"`
	ParentIndex       int                   `json:"parentIndex"`
	Index             int                   `json:"index"`
	InnerInstructions []*DecodedInstruction `json:"innerInstructions"`
	Err               bool                  `json:"err"` // 所属交易链上执行失败
}

type ResultKind uint8

const (
	ResultDecoded ResultKind = iota
	ResultNotAnchor
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultDecoded:
		return "decoded"
	case ResultNotAnchor:
		return "not_anchor"
	case ResultError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Result 单条指令的解码结果：
//   - ResultDecoded：Instruction 非空
//   - ResultNotAnchor：判别符未命中；Reserved 表示命中 IDL 管理指令
//   - ResultError：命中 schema 但账户映射缺失或参数解码失败，Err 为原因
type Result struct {
	Kind        ResultKind
	Instruction *DecodedInstruction
	Reserved    bool
	Err         error
}

func Decoded(ix *DecodedInstruction) Result {
	return Result{Kind: ResultDecoded, Instruction: ix}
}

func NotAnchor(reserved bool) Result {
	return Result{Kind: ResultNotAnchor, Reserved: reserved}
}

func Failed(err error) Result {
	return Result{Kind: ResultError, Err: err}
}

func (r Result) IsDecoded() bool {
	return r.Kind == ResultDecoded
}
