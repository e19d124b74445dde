package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザーが投稿するテキスト（チケット、配信説明、管理者の返信）を無害化する。
// bluemondayのポリシーはスレッドセーフで、1インスタンスを共有できる。
type Sanitizer struct {
	text *bluemonday.Policy
	rich *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//   - Text: 全てのタグを除去する（件名、タイトル）
//   - RichText: p, br, ul, ol, li, strong, em, blockquote, pre, code と
//     http(s)の絶対URLを持つaのみ許可する（本文、返信、配信説明）
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "blockquote", "pre", "code",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("http", "https")
	rich.AllowRelativeURLs(false)
	rich.RequireParseableURLs(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		rich: rich,
	}
}

// Text はタグを全て除去し、前後の空白を取り除く。
func (s *Sanitizer) Text(input string) string {
	return strings.TrimSpace(s.text.Sanitize(input))
}

// RichText は許可リストのタグのみ残す。
func (s *Sanitizer) RichText(input string) string {
	return strings.TrimSpace(s.rich.Sanitize(input))
}
