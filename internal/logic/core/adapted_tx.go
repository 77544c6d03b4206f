package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrNoSignature = errors.New("transaction has no signature")

// RawTransaction 与 RPC getTransaction(encoding=json) 返回结构一致，
// gRPC / wire 格式的交易也先转换为该结构，再进入指令树重建流程。
type RawTransaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"` // Unix 秒，可能为 null
	Transaction TransactionBody  `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
	Version     TxVersion        `json:"version"`

	// AddressTables ALT 地址 → 表内账户（base58）。
	// 调用方已拉取 lookup table 内容时填充，用于直接解析完整账户空间；为空时回退 meta.loadedAddresses。
	AddressTables map[string][]string `json:"-"`
}

type TransactionBody struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

type Message struct {
	Header              MessageHeader         `json:"header"`
	AccountKeys         []string              `json:"accountKeys"` // 静态账户（base58）
	RecentBlockhash     string                `json:"recentBlockhash"`
	Instructions        []CompiledInstruction `json:"instructions"`
	AddressTableLookups []AddressTableLookup  `json:"addressTableLookups,omitempty"`
}

type MessageHeader struct {
	NumRequiredSignatures       uint8 `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"numReadonlyUnsignedAccounts"`
}

// CompiledInstruction 账户与程序均以账户空间下标表示
type CompiledInstruction struct {
	ProgramIDIndex uint16   `json:"programIdIndex"`
	Accounts       []uint16 `json:"accounts"`
	Data           string   `json:"data"` // base58
	StackHeight    *uint32  `json:"stackHeight,omitempty"`

	// RawData gRPC / wire 来源已是原始字节时直接填充，优先于 Data
	RawData []byte `json:"-"`
}

type AddressTableLookup struct {
	AccountKey      string   `json:"accountKey"`
	WritableIndexes []uint16 `json:"writableIndexes"`
	ReadonlyIndexes []uint16 `json:"readonlyIndexes"`
}

type TransactionMeta struct {
	Err               any                     `json:"err"`
	Fee               uint64                  `json:"fee"`
	InnerInstructions []InnerInstructionGroup `json:"innerInstructions"`
	LogMessages       []string                `json:"logMessages"`
	LoadedAddresses   *LoadedAddresses        `json:"loadedAddresses,omitempty"`
}

// InnerInstructionGroup 某条主指令（Index）触发的全部 CPI 指令
type InnerInstructionGroup struct {
	Index        uint16                `json:"index"`
	Instructions []CompiledInstruction `json:"instructions"`
}

// LoadedAddresses 节点已解析的 ALT 地址，writable 在前 readonly 在后
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// TxVersion -1 表示 legacy，其余为版本号
type TxVersion int

const LegacyVersion TxVersion = -1

func (v *TxVersion) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "null", `"legacy"`:
		*v = LegacyVersion
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid transaction version %s", s)
	}
	*v = TxVersion(n)
	return nil
}

func (v TxVersion) MarshalJSON() ([]byte, error) {
	if v == LegacyVersion {
		return json.Marshal("legacy")
	}
	return json.Marshal(int(v))
}

// Hash 交易哈希即第一个签名
func (tx *RawTransaction) Hash() (string, error) {
	if len(tx.Transaction.Signatures) == 0 {
		return "", ErrNoSignature
	}
	return tx.Transaction.Signatures[0], nil
}

// HasErrored 链上执行是否失败。meta 缺失时同样视为失败
func (tx *RawTransaction) HasErrored() bool {
	return tx.Meta == nil || tx.Meta.Err != nil
}

func (tx *RawTransaction) Logs() []string {
	if tx.Meta == nil {
		return nil
	}
	return tx.Meta.LogMessages
}

// BlockTimeMs blockTime 转毫秒，缺失时返回 0
func (tx *RawTransaction) BlockTimeMs() int64 {
	if tx.BlockTime == nil {
		return 0
	}
	return *tx.BlockTime * 1000
}

// Instruction 重建后的单条指令（解码前），只在一次解码流程内存在
type Instruction struct {
	Index     int      // 主指令：在原始主指令列表中的位置；inner：在所属分组内的位置
	TxHash    string   // 所属交易
	ProgramID string   // base58
	Data      []byte   // 原始数据
	ParentIdx int      // -1 表示主指令，否则为所属主指令下标
	Accounts  []string // base58，保持原始顺序
	Timestamp int64    // 毫秒
}

func (ix *Instruction) IsInner() bool {
	return ix.ParentIdx >= 0
}
