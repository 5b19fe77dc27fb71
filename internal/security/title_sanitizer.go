package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizer は上流APIから受け取ったタイトルや名前からマークアップを除去する。
// 出力はJSONでそのまま返すプレーンテキストで、HTMLエンティティを含まない。
// HTMLへ埋め込む場合のエスケープは表示層が行う。
type TitleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はタグを一切許可しないポリシーでTitleSanitizerを生成する。
func NewTitleSanitizer() *TitleSanitizer {
	return &TitleSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は全タグを除去し、bluemondayが付けたエンティティを元の文字に戻して、
// 前後の空白を取り除いた文字列を返す。
func (s *TitleSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
