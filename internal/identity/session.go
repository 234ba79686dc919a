// Package identity は外部IDプロバイダーとの連携を提供する。
// セッションの追跡、変更通知の発行、変更系リクエストに添付する
// 証明トークンの取得を含む。トークンの検証は一切行わない。
package identity

import (
	"context"

	"github.com/hitoshi/cinelog/internal/model"
)

// TokenSource は証明トークンの取得インターフェース。
// トークンは短命のため呼び出しごとに新規取得し、キャッシュしない。
type TokenSource interface {
	// ProofToken は現在の資格情報から新しい証明トークンを取得する。
	ProofToken(ctx context.Context) (string, error)
}

// Session は現在の認証済みアイデンティティを表す。
// nilの*Sessionはセッション不在を意味する。
// 一度発行されたSessionはイミュータブルであり、アイデンティティの変更時は
// 新しいSessionで丸ごと置き換えられる。
type Session struct {
	Email string
	UID   string

	source TokenSource
}

// NewSession はSessionを生成する。sourceは証明トークンの取得に使用される。
func NewSession(email, uid string, source TokenSource) *Session {
	return &Session{Email: email, UID: uid, source: source}
}

// Present はセッションが存在するかを返す。nilレシーバーでも安全に呼び出せる。
func (s *Session) Present() bool {
	return s != nil
}

// ProofToken は変更系リクエストに添付する証明トークンを新規取得する。
// セッション不在の場合はUnauthorizedエラーを返す。
// 取得失敗はそのリクエストの失敗であり、セッション自体は無効化されない。
func (s *Session) ProofToken(ctx context.Context) (string, error) {
	if s == nil || s.source == nil {
		return "", model.NewUnauthorizedError()
	}
	return s.source.ProofToken(ctx)
}
