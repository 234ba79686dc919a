package sync

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
)

// PostService は投稿同期に必要なゲートウェイ操作のインターフェース。
// gateway.Clientが実装する。
type PostService interface {
	ListPosts(ctx context.Context, limit int) ([]model.Post, error)
	CreatePost(ctx context.Context, draft model.PostDraft) (*model.Post, error)
	UpdatePost(ctx context.Context, id string, update model.PostUpdate) (*model.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// PostReconciler は投稿一覧スコープの同期を担う。
type PostReconciler struct {
	service PostService
	limit   int
	col     *collection
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewPosts は投稿一覧スコープを生成する。limitが正の場合はロード時の
// 件数上限となる。
func NewPosts(service PostService, limit int, recorder metrics.Recorder, logger *slog.Logger) *PostReconciler {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &PostReconciler{
		service: service,
		limit:   limit,
		col:     newCollection(recorder),
		metrics: recorder,
		logger:  logger,
	}
}

// Load はコレクション全体をリモートの最新状態で置き換える。
// 並行ロードはlast-write-wins。
func (p *PostReconciler) Load(ctx context.Context) error {
	id := p.col.beginLoad()

	posts, err := p.service.ListPosts(ctx, p.limit)
	if err != nil {
		p.logger.Warn("投稿のロードに失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	items := make([]model.ContentItem, len(posts))
	for i, post := range posts {
		items[i] = post
	}
	if !p.col.completeLoad(id, items) {
		p.logger.Debug("古いロード結果を破棄しました",
			slog.Int64("load_id", id),
		)
	}
	return nil
}

// Create は投稿を検証のうえ作成し、成功時にサーバーが採番した投稿を
// コレクションの先頭に追加する。
func (p *PostReconciler) Create(ctx context.Context, draft model.PostDraft) (*model.Post, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}

	created, err := p.service.CreatePost(ctx, draft)
	if err != nil {
		return nil, err
	}

	p.col.applyCreate(*created)
	p.metrics.RecordMutationApplied("post_create")
	return created, nil
}

// Update は投稿を置換する。サーバーが更新後の投稿を返した場合は
// それで置き換え、返さない場合は更新内容をローカルにマージする。
func (p *PostReconciler) Update(ctx context.Context, id string, update model.PostUpdate) error {
	if strings.TrimSpace(update.Title) == "" {
		return model.NewValidationError("タイトルを入力してください")
	}

	updated, err := p.service.UpdatePost(ctx, id, update)
	if err != nil {
		return err
	}

	p.col.applyUpdate(id, func(current model.ContentItem) model.ContentItem {
		if updated != nil {
			return *updated
		}
		post, ok := current.(model.Post)
		if !ok {
			return current
		}
		post.Title = update.Title
		post.Excerpt = update.Excerpt
		post.Content = update.Content
		post.Body = update.Content
		return post
	})
	p.metrics.RecordMutationApplied("post_update")
	return nil
}

// Remove は投稿を削除する。成功した場合のみコレクションから取り除く。
func (p *PostReconciler) Remove(ctx context.Context, id string) error {
	if err := p.service.DeletePost(ctx, id); err != nil {
		return err
	}
	p.col.applyRemove(id)
	p.metrics.RecordMutationApplied("post_remove")
	return nil
}

// Posts はコレクションの現在のスナップショットを返す。
func (p *PostReconciler) Posts() []model.Post {
	items := p.col.snapshot()
	posts := make([]model.Post, 0, len(items))
	for _, item := range items {
		if post, ok := item.(model.Post); ok {
			posts = append(posts, post)
		}
	}
	return posts
}

// Close はスコープを破棄する。
func (p *PostReconciler) Close() {
	p.col.close()
}
