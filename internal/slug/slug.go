// Package slug 将标题与标签名转换为 URL 安全的标识符。
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLength 是生成的 slug（含后缀）的最大长度
	MaxLength = 80
	// Fallback 在规范化后没有任何可用字符时使用
	Fallback = "untitled"

	fingerprintLength = 8
)

// Make 根据文本生成小写、以连字符分隔的 slug，永不失败。
// 没有可用字符的输入（例如中文标题）得到 "untitled-<指纹>"，不同标题的指纹不同。
func Make(text string) string {
	return MakeWithFallback(text, Fallback)
}

// MakeWithFallback 与 Make 相同，但由调用方指定兜底前缀。
func MakeWithFallback(text, fallback string) string {
	// transform.Chain 持有状态，不能在 goroutine 之间共享
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	pendingHyphen := false
	writeWord := func(word string) {
		if pendingHyphen && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingHyphen = false
		b.WriteString(word)
	}

	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			writeWord(string(r))
		case r == '&':
			pendingHyphen = true
			writeWord("and")
			pendingHyphen = true
		case r == '\'' || r == '’':
			// apostrophes join words: "don't" -> "dont"
		default:
			pendingHyphen = true
		}
	}

	out := b.String()
	if len(out) > MaxLength {
		out = strings.TrimRight(out[:MaxLength], "-")
	}
	if out == "" {
		return fingerprint(text, fallback)
	}
	return out
}

// fingerprint 用文本的 SHA-1 名字空间 UUID 前缀区分兜底 slug，相同文本结果相同。
// 空白文本直接返回 fallback。
func fingerprint(text, fallback string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fallback
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(trimmed)).String()
	return fallback + "-" + id[:fingerprintLength]
}

// WithSuffix 在 base 后追加 "-n"，必要时截断 base 以保持在 MaxLength 以内。
// n <= 0 时原样返回 base。
func WithSuffix(base string, n int) string {
	if n <= 0 {
		return base
	}
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > MaxLength {
		base = strings.TrimRight(base[:MaxLength-len(suffix)], "-")
	}
	return base + suffix
}
