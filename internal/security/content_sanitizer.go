// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はサービスから取得したブログ記事の本文・抜粋を
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// 記事はリモートサービス上で任意のサインイン済みユーザーが編集できるため、
// 本文はクライアント側でも信頼しない。bluemondayライブラリを使用した
// 許可リストベースのポリシーで、安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// ゲートウェイが記事レスポンスをデコードした直後の境界で使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 許可タグのみを通過させ、script, iframe, styleタグおよび
	// on*イベント属性を除去する。imgのsrc属性はhttpsスキームのみ許可される。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: 見出し（h1〜h4）、段落・整形系（p, br, ul, ol, li,
//     blockquote, pre, code, strong, em）、リンク、画像
//   - script, iframe, style および全てのon*イベント属性は許可リスト外のため除去
//   - imgのsrc属性はhttpsスキームのみ許可
//   - aタグは target="_blank" と rel="noreferrer noopener" を強制付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// ブログ記事は見出しを含むため、フィード本文より広い許可リストを使う
	p.AllowElements(
		"h1", "h2", "h3", "h4",
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
