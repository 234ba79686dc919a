package gateway

import (
	"context"
	"net/url"

	"github.com/hitoshi/cinelog/internal/model"
)

// ListMovieReviews は映画に紐づくレビュー一覧を取得する。認証不要。
func (c *Client) ListMovieReviews(ctx context.Context, movieID string) ([]model.Review, error) {
	var reviews []model.Review
	path := "/api/reviews/movie/" + url.PathEscape(movieID)
	if err := c.getJSON(ctx, "list_movie_reviews", path, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// ListMyReviews は呼び出し元が所有するレビュー一覧を取得する。
// 読み取りだがBearerトークン必須のエンドポイントであり、
// セッション不在時はネットワークI/Oなしで失敗する。
func (c *Client) ListMyReviews(ctx context.Context) ([]model.Review, error) {
	var reviews []model.Review
	if err := c.authedGetJSON(ctx, "list_my_reviews", "/api/my-reviews", &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview はレビューを新規作成する。サーバーが採番したIDを含む
// レビューを返す。
func (c *Client) CreateReview(ctx context.Context, draft model.ReviewDraft) (*model.Review, error) {
	var created model.Review
	if err := c.mutateJSON(ctx, "create_review", "POST", "/api/reviews", draft, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// PatchReview はレビューを部分更新する。サーバーが更新後のレビューを
// 返さない場合はnilを返す（呼び出し元がローカルマージを行う）。
func (c *Client) PatchReview(ctx context.Context, id string, patch model.ReviewPatch) (*model.Review, error) {
	var updated model.Review
	if err := c.mutateJSON(ctx, "patch_review", "PATCH", "/api/reviews/"+url.PathEscape(id), patch, &updated); err != nil {
		return nil, err
	}
	if updated.ID == "" {
		return nil, nil
	}
	return &updated, nil
}

// DeleteReview はレビューを削除する。
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	return c.mutateJSON(ctx, "delete_review", "DELETE", "/api/reviews/"+url.PathEscape(id), nil, nil)
}
