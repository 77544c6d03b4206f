package layout

import (
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"

	"github.com/Syoongy/sniffer/internal/idl"
	"github.com/Syoongy/sniffer/internal/types"
)

var (
	ErrInvalidBool   = errors.New("invalid bool byte")
	ErrInvalidOption = errors.New("invalid option flag")
	ErrInvalidEnum   = errors.New("invalid enum variant")
	ErrLengthTooBig  = errors.New("length prefix exceeds remaining bytes")
)

// Layout 是编译后的字段解码器：从游标中读取确定数量（或长度前缀指定数量）的字节并返回结构化值。
//
// 解码结果类型：
//   - bool / uint8..uint64 / int8..int64 / float32 / float64
//   - u128 / i128 → *big.Int
//   - string → string，bytes → []byte，publicKey → types.Pubkey
//   - vec / array → []any，option → nil 或内部值
//   - struct → map[string]any，enum → map[string]any{变体名: 字段}
type Layout interface {
	Decode(d *bin.Decoder) (any, error)
}

// DecodeBytes 用 layout 解码一段完整字节，尾部多余字节忽略
func DecodeBytes(l Layout, data []byte) (any, error) {
	return l.Decode(bin.NewBorshDecoder(data))
}

type primitiveLayout struct {
	name string
}

func (p *primitiveLayout) Decode(d *bin.Decoder) (any, error) {
	switch p.name {
	case idl.Bool:
		b, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrInvalidBool, b)
	case idl.U8:
		return d.ReadUint8()
	case idl.I8:
		return d.ReadInt8()
	case idl.U16:
		return d.ReadUint16(bin.LE)
	case idl.I16:
		return d.ReadInt16(bin.LE)
	case idl.U32:
		return d.ReadUint32(bin.LE)
	case idl.I32:
		return d.ReadInt32(bin.LE)
	case idl.F32:
		return d.ReadFloat32(bin.LE)
	case idl.U64:
		return d.ReadUint64(bin.LE)
	case idl.I64:
		return d.ReadInt64(bin.LE)
	case idl.F64:
		return d.ReadFloat64(bin.LE)
	case idl.U128, idl.I128:
		raw, err := d.ReadBytes(16)
		if err != nil {
			return nil, err
		}
		return Int128FromLE(raw, p.name == idl.I128), nil
	case idl.PublicKey:
		raw, err := d.ReadBytes(types.PubkeySize)
		if err != nil {
			return nil, err
		}
		var pk types.Pubkey
		copy(pk[:], raw)
		return pk, nil
	case idl.String:
		raw, err := readSized(d)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case idl.Bytes:
		raw, err := readSized(d)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
	return nil, fmt.Errorf("unsupported primitive %q", p.name)
}

// readSized 读取 u32 LE 长度前缀 + 对应字节
func readSized(d *bin.Decoder) ([]byte, error) {
	n, err := readLength(d, 1)
	if err != nil {
		return nil, err
	}
	return d.ReadBytes(n)
}

// MaxZeroSizedLen 元素编码可能为 0 字节（空结构体、[T; 0]）时 vec 长度的上限，
// 剩余字节数无法约束这类长度
const MaxZeroSizedLen = 1 << 12

// readLength 读取 u32 长度前缀；minElemSize 用于提前拒绝明显越界的长度，避免大分配
func readLength(d *bin.Decoder, minElemSize int) (int, error) {
	n, err := d.ReadUint32(bin.LE)
	if err != nil {
		return 0, err
	}
	if minElemSize <= 0 {
		if n > MaxZeroSizedLen {
			return 0, fmt.Errorf("%w: len=%d exceeds %d zero-sized elements", ErrLengthTooBig, n, MaxZeroSizedLen)
		}
		return int(n), nil
	}
	if uint64(n)*uint64(minElemSize) > uint64(d.Remaining()) {
		return 0, fmt.Errorf("%w: len=%d remaining=%d", ErrLengthTooBig, n, d.Remaining())
	}
	return int(n), nil
}

type arrayLayout struct {
	elem Layout
	n    int
}

func (a *arrayLayout) Decode(d *bin.Decoder) (any, error) {
	out := make([]any, a.n)
	for i := 0; i < a.n; i++ {
		v, err := a.elem.Decode(d)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

type vecLayout struct {
	elem     Layout
	elemSize int // 元素最小字节数，0 表示未知
}

func (v *vecLayout) Decode(d *bin.Decoder) (any, error) {
	n, err := readLength(d, v.elemSize)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		item, err := v.elem.Decode(d)
		if err != nil {
			return nil, fmt.Errorf("vec[%d]: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// optionLayout Option 为 1 字节标志位；COption 为 4 字节标志位
type optionLayout struct {
	inner   Layout
	coption bool
}

func (o *optionLayout) Decode(d *bin.Decoder) (any, error) {
	var flag uint32
	if o.coption {
		f, err := d.ReadUint32(bin.LE)
		if err != nil {
			return nil, err
		}
		flag = f
	} else {
		f, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		flag = uint32(f)
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		return o.inner.Decode(d)
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidOption, flag)
}

// FieldLayout 结构体中的一个具名成员
type FieldLayout struct {
	Name   string
	Layout Layout
}

// StructLayout 按声明顺序拼接成员，成员顺序即线上格式，禁止重排
type StructLayout struct {
	Fields []FieldLayout
}

func (s *StructLayout) Decode(d *bin.Decoder) (any, error) {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v, err := f.Layout.Decode(d)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// DecodeMap 同 Decode，返回具体类型
func (s *StructLayout) DecodeMap(data []byte) (map[string]any, error) {
	v, err := s.Decode(bin.NewBorshDecoder(data))
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// FieldNames 声明顺序的字段名
func (s *StructLayout) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

type tupleLayout struct {
	elems []Layout
}

func (t *tupleLayout) Decode(d *bin.Decoder) (any, error) {
	out := make([]any, len(t.elems))
	for i, e := range t.elems {
		v, err := e.Decode(d)
		if err != nil {
			return nil, fmt.Errorf("tuple[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

type variantLayout struct {
	name   string
	fields Layout // nil 表示 unit 变体
}

// enumLayout u8 变体下标 + 变体字段
type enumLayout struct {
	variants []variantLayout
}

func (e *enumLayout) Decode(d *bin.Decoder) (any, error) {
	idx, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(e.variants) {
		return nil, fmt.Errorf("%w: index %d, variants %d", ErrInvalidEnum, idx, len(e.variants))
	}
	v := e.variants[idx]
	if v.fields == nil {
		return map[string]any{v.name: map[string]any{}}, nil
	}
	val, err := v.fields.Decode(d)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", v.name, err)
	}
	return map[string]any{v.name: val}, nil
}

// refLayout 对具名类型的延迟引用，用于经 vec/option 间接形成的递归类型
type refLayout struct {
	name   string
	target *Layout
}

func (r *refLayout) Decode(d *bin.Decoder) (any, error) {
	if r.target == nil || *r.target == nil {
		return nil, fmt.Errorf("unresolved type reference %q", r.name)
	}
	return (*r.target).Decode(d)
}

// Int128FromLE 将 16 字节小端补码转为 *big.Int
func Int128FromLE(raw []byte, signed bool) *big.Int {
	be := make([]byte, len(raw))
	for i := range raw {
		be[len(raw)-1-i] = raw[i]
	}
	n := new(big.Int).SetBytes(be)
	if signed && len(raw) > 0 && raw[len(raw)-1]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(raw)*8)))
	}
	return n
}

// Int128ToLE 将 *big.Int 编码为 16 字节小端补码（测试及构造指令数据用）
func Int128ToLE(n *big.Int) []byte {
	v := new(big.Int).Set(n)
	if v.Sign() < 0 {
		v.Add(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	be := v.FillBytes(make([]byte, 16))
	out := make([]byte, 16)
	for i := range be {
		out[15-i] = be[i]
	}
	return out
}
