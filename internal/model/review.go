// Package model はドメインモデルを定義する。
package model

import "github.com/hitoshi/cinelog/internal/timestamp"

// レビュー評価の有効範囲。送信前の検証とクランプに使用する。
const (
	// RatingMin はレビュー評価の下限。
	RatingMin = 0
	// RatingMax はレビュー評価の上限。
	RatingMax = 10
)

// Review は映画に対するレビューを表す。
// IDはサービス側が採番するため、作成ドラフトでは空となる。
type Review struct {
	ID          string              `json:"id"`
	MovieID     string              `json:"movieId"`
	MovieTitle  string              `json:"movieTitle"`
	Rating      int                 `json:"rating"`
	Text        string              `json:"text"`
	AuthorEmail string              `json:"userEmail"`
	CreatedAt   timestamp.Timestamp `json:"createdAt"`
	UpdatedAt   timestamp.Timestamp `json:"updatedAt,omitzero"`
	OwnerUID    string              `json:"ownerUid,omitempty"`
}

// ItemID はContentItemインターフェースを実装する。
func (r Review) ItemID() string { return r.ID }

func (Review) isContentItem() {}

// ReviewDraft はレビュー作成時にサービスへ送信するペイロードを表す。
type ReviewDraft struct {
	MovieID    string `json:"movieId"`
	MovieTitle string `json:"movieTitle"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
}

// ReviewPatch はレビュー部分更新時にサービスへ送信するペイロードを表す。
type ReviewPatch struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

// ContentItem は同期対象のコンテンツ（レビューまたは投稿）を表すタグ付きユニオン。
// 実装はReviewとPostのみ。コレクションのスコープ内でItemIDは一意となる。
type ContentItem interface {
	// ItemID はコレクション内で一意な識別子を返す。
	ItemID() string

	isContentItem()
}

// コンパイル時のインターフェース実装チェック
var (
	_ ContentItem = Review{}
	_ ContentItem = Post{}
)
