package mq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordKind Kafka 消息的记录类型，写在消息头 4 字节
type RecordKind uint32

const (
	RecordInstructions RecordKind = 1
	RecordEvents       RecordKind = 2
)

func (k RecordKind) String() string {
	switch k {
	case RecordInstructions:
		return "instructions"
	case RecordEvents:
		return "events"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

var ErrShortRecord = errors.New("record shorter than kind prefix")

// EncodeRecord 将 protobuf 消息编码为带记录类型前缀的二进制数据：
// - 前 4 字节为记录类型（uint32，小端序）
// - 后续为 protobuf 序列化数据（Deterministic，便于下游去重）
func EncodeRecord(kind RecordKind, msg proto.Message) ([]byte, error) {
	const extraBuffer = 32

	size := proto.Size(msg)
	buf := make([]byte, 4, 4+size+extraBuffer)
	binary.LittleEndian.PutUint32(buf[:4], uint32(kind))

	opts := proto.MarshalOptions{Deterministic: true}
	result, err := opts.MarshalAppend(buf, msg)
	if err != nil {
		return nil, fmt.Errorf("EncodeRecord: marshal %T: %w", msg, err)
	}
	return result, nil
}

// DecodeRecord EncodeRecord 的逆过程，供下游消费与测试使用
func DecodeRecord(b []byte) (RecordKind, *structpb.Struct, error) {
	if len(b) < 4 {
		return 0, nil, ErrShortRecord
	}
	kind := RecordKind(binary.LittleEndian.Uint32(b[:4]))
	st := &structpb.Struct{}
	if err := proto.Unmarshal(b[4:], st); err != nil {
		return kind, nil, fmt.Errorf("DecodeRecord: %w", err)
	}
	return kind, st, nil
}

// NewValue 将规范化后的值转换为 structpb.Value。
// 规范化结果只包含 string/bool/nil/[]any/map[string]any；其余类型按 fmt.Sprint 落为字符串。
func NewValue(v any) *structpb.Value {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue()
	case string:
		return structpb.NewStringValue(x)
	case bool:
		return structpb.NewBoolValue(x)
	case int:
		return structpb.NewNumberValue(float64(x))
	case int32:
		return structpb.NewNumberValue(float64(x))
	case int64:
		return structpb.NewNumberValue(float64(x))
	case uint32:
		return structpb.NewNumberValue(float64(x))
	case float64:
		return structpb.NewNumberValue(x)
	case *big.Int:
		if x == nil {
			return structpb.NewNullValue()
		}
		return structpb.NewStringValue(x.String())
	case []string:
		list := make([]*structpb.Value, len(x))
		for i, s := range x {
			list[i] = structpb.NewStringValue(s)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: list})
	case []any:
		list := make([]*structpb.Value, len(x))
		for i, e := range x {
			list[i] = NewValue(e)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: list})
	case map[string]any:
		return structpb.NewStructValue(NewStruct(x))
	default:
		return structpb.NewStringValue(fmt.Sprint(x))
	}
}

// NewStruct map → structpb.Struct，nil map 得到空 Struct
func NewStruct(m map[string]any) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(m))
	for k, v := range m {
		fields[k] = NewValue(v)
	}
	return &structpb.Struct{Fields: fields}
}
