package discriminator

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"unicode"

	"github.com/mr-tron/base58"
)

const (
	NamespaceGlobal = "global"
	NamespaceState  = "state"

	eventPrefix = "event:"

	Size = 8
)

// Discriminator 8 字节前缀，用于把原始字节分派到对应 layout
type Discriminator [Size]byte

func (d Discriminator) Base58() string {
	return base58.Encode(d[:])
}

func (d Discriminator) Base64() string {
	return base64.StdEncoding.EncodeToString(d[:])
}

// Sighash 指令判别符：sha256("<namespace>:<snake_case(name)>")[:8]
func Sighash(namespace, name string) Discriminator {
	return hash8(namespace + ":" + SnakeCase(name))
}

// Event 事件判别符：sha256("event:<Name>")[:8]，事件名保持原样不做大小写转换
func Event(name string) Discriminator {
	return hash8(eventPrefix + name)
}

func hash8(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:Size])
	return d
}

// SnakeCase 与 Anchor 客户端一致的 snake_case 转换：
// 在 小写/数字→大写、大写→大写+小写 处断词，非字母数字视为分隔符，全部小写后以 "_" 连接。
// 例：initializeConfig → initialize_config，swapV2 → swap_v2，HTTPServer → http_server
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}

	words := strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "_")
}
