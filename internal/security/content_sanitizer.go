// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は評価コメントやメール入力などの自由記述テキストから
// マークアップを除去し、プレーンテキストとして保存・埋め込みできる形に整える。
// bluemondayのStrictPolicyを使用し、すべてのタグと属性を除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxTextLength は自由記述テキストの最大文字数。
const DefaultMaxTextLength = 1000

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はタグを除去して前後の空白を取り除いたプレーンテキストを返す。
	// 文字数が上限を超える場合は上限で切り詰める。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので複数goroutineから共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// maxLenが0以下の場合はDefaultMaxTextLengthを使用する。
func NewTextSanitizer(maxLen int) *textSanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// Sanitize はテキストからマークアップを除去する。
// StrictPolicyはエスケープ済みの文字列を返すため、テンプレート側での二重エスケープを避けるよう
// エンティティを元の文字に戻してから保存する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > s.maxLen {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxLen]))
	}
	return text
}
