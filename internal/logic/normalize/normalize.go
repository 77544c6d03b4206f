package normalize

import (
	"math/big"
	"reflect"
	"strconv"

	"github.com/Syoongy/sniffer/internal/types"
	"github.com/Syoongy/sniffer/pkg/logger"
)

// MaxDepth 递归硬上限。depth >= MaxDepth 的容器原样返回，不再下探；
// 标量在所属容器内转换，只受容器深度约束。
// 没有 visited 集合，合法但嵌套超过 11 层的 schema 同样会被截断。
const MaxDepth = 11

// BigIntValue 可以产出 *big.Int 的值（例如外部解码库的大整数包装类型）
type BigIntValue interface {
	BigInt() *big.Int
}

// Normalize 把解码结果转换为可安全序列化的形式：
//   - 大整数 → 十进制字符串
//   - 切片 → 逐元素
//   - 公钥 → base58
//   - map → 逐字段
//   - 数值标量 → 十进制字符串
//
// []any 与 map[string]any 原地改写。单个字段转换 panic 时保留原值，其余字段继续。
// 对已规范化的值再次调用结果不变。
func Normalize(v any, depth int) any {
	return field(v, depth)
}

// Fields 规范化解码出的参数/事件字段：每个顶层字段从 depth 0 开始，
// 顶层 map 本身不计入深度
func Fields(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = field(v, 0)
	}
	return m
}

func field(v any, depth int) (out any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debugf("[normalize::field] keep original value %T: %v", v, r)
			out = v
		}
	}()
	return normalize(v, depth)
}

func normalize(v any, depth int) any {
	if v == nil {
		return v
	}

	switch x := v.(type) {
	case string, bool:
		return v
	case *big.Int:
		if x == nil {
			return v
		}
		return x.String()
	case BigIntValue:
		return x.BigInt().String()
	case types.Pubkey:
		return x.String()
	case *types.Pubkey:
		if x == nil {
			return v
		}
		return x.String()
	case []any:
		if depth >= MaxDepth {
			return v
		}
		for i := range x {
			x[i] = field(x[i], depth+1)
		}
		return x
	case []byte:
		if depth >= MaxDepth {
			return v
		}
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = strconv.FormatUint(uint64(b), 10)
		}
		return out
	case map[string]any:
		if depth >= MaxDepth {
			return v
		}
		for k, fv := range x {
			x[k] = field(fv, depth+1)
		}
		return x
	}

	if s, ok := scalar(v); ok {
		return s
	}
	if depth >= MaxDepth {
		return v
	}
	return reflected(v, depth)
}

func scalar(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

// reflected 处理非 []any / map[string]any 的容器（如 []uint64、map[string]uint16、结构体），
// 结果统一为 []any / map[string]any
func reflected(v any, depth int) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = field(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = field(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return v
		}
		return structFields(rv.Elem(), depth)
	case reflect.Struct:
		return structFields(rv, depth)
	}
	return v
}

// structFields 导出字段转为 map，键为字段名；未导出字段忽略
func structFields(rv reflect.Value, depth int) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		out[f.Name] = field(rv.Field(i).Interface(), depth+1)
	}
	return out
}
