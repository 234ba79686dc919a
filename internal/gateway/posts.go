package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hitoshi/cinelog/internal/model"
)

// excerptMaxLength は抜粋を自動生成する際の本文先頭の最大文字数。
const excerptMaxLength = 160

// ListPosts は投稿一覧を取得する。limitが正の場合は件数上限を付与する。
// 認証不要。
func (c *Client) ListPosts(ctx context.Context, limit int) ([]model.Post, error) {
	path := "/api/posts"
	if limit > 0 {
		path = fmt.Sprintf("/api/posts?limit=%d", limit)
	}

	var posts []model.Post
	if err := c.getJSON(ctx, "list_posts", path, &posts); err != nil {
		return nil, err
	}
	for i := range posts {
		c.sanitizePost(&posts[i])
	}
	return posts, nil
}

// GetPost は投稿を1件取得する。認証不要。
func (c *Client) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := c.getJSON(ctx, "get_post", "/api/posts/"+url.PathEscape(id), &post); err != nil {
		return nil, err
	}
	c.sanitizePost(&post)
	return &post, nil
}

// CreatePost は投稿を新規作成する。抜粋が空の場合は本文の先頭から
// 自動生成して送信する。サーバーが採番したIDを含む投稿を返す。
func (c *Client) CreatePost(ctx context.Context, draft model.PostDraft) (*model.Post, error) {
	if draft.Excerpt == "" {
		draft.Excerpt = autoExcerpt(draft.Body)
	}

	var created model.Post
	if err := c.mutateJSON(ctx, "create_post", "POST", "/api/posts", draft, &created); err != nil {
		return nil, err
	}
	c.sanitizePost(&created)
	return &created, nil
}

// UpdatePost は投稿を置換する。置換エンドポイントは本文をcontent
// フィールドで受け取るため、PostUpdateをそのまま送信する。
// サーバーが更新後の投稿を返さない場合はnilを返す。
func (c *Client) UpdatePost(ctx context.Context, id string, update model.PostUpdate) (*model.Post, error) {
	var updated model.Post
	if err := c.mutateJSON(ctx, "update_post", "PUT", "/api/posts/"+url.PathEscape(id), update, &updated); err != nil {
		return nil, err
	}
	if updated.ID == "" {
		return nil, nil
	}
	c.sanitizePost(&updated)
	return &updated, nil
}

// DeletePost は投稿を削除する。
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.mutateJSON(ctx, "delete_post", "DELETE", "/api/posts/"+url.PathEscape(id), nil, nil)
}

// autoExcerpt は本文の先頭から抜粋を生成する。
func autoExcerpt(body string) string {
	text := strings.TrimSpace(body)
	runes := []rune(text)
	if len(runes) <= excerptMaxLength {
		return text
	}
	return string(runes[:excerptMaxLength]) + "..."
}
