// Package model はドメインモデルを定義する。
package model

import "github.com/hitoshi/cinelog/internal/timestamp"

// Post はブログ記事を表す。
// 本文はエンドポイントによってbodyまたはcontentのどちらのフィールドでも
// 返却されるため、両方を保持しBodyTextで解決する。
// 投稿の編集・削除権限はサービス側のポリシーに委ねられており、
// このレイヤーでは所有者チェックを行わない。
type Post struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Excerpt   string              `json:"excerpt"`
	Body      string              `json:"body"`
	Content   string              `json:"content,omitempty"` // 旧フィールド名の互換用
	Featured  bool                `json:"featured"`
	Category  string              `json:"category,omitempty"`
	Views     int                 `json:"views,omitempty"`
	CreatedAt timestamp.Timestamp `json:"createdAt"`
}

// ItemID はContentItemインターフェースを実装する。
func (p Post) ItemID() string { return p.ID }

func (Post) isContentItem() {}

// BodyText は本文を返す。bodyフィールドを優先し、空ならcontentを使用する。
func (p Post) BodyText() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Content
}

// PostDraft は投稿作成時にサービスへ送信するペイロードを表す。
// Excerptが空の場合、送信前に本文の先頭から自動生成される。
type PostDraft struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Body     string `json:"body"`
	Featured bool   `json:"featured"`
}

// PostUpdate は投稿置換時にサービスへ送信するペイロードを表す。
// 置換エンドポイントは本文をcontentフィールドで受け取る。
type PostUpdate struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
}
