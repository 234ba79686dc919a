package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/timestamp"
)

// ReviewService はレビュー同期に必要なゲートウェイ操作のインターフェース。
// gateway.Clientが実装する。
type ReviewService interface {
	ListMovieReviews(ctx context.Context, movieID string) ([]model.Review, error)
	ListMyReviews(ctx context.Context) ([]model.Review, error)
	CreateReview(ctx context.Context, draft model.ReviewDraft) (*model.Review, error)
	PatchReview(ctx context.Context, id string, patch model.ReviewPatch) (*model.Review, error)
	DeleteReview(ctx context.Context, id string) error
}

// ReviewReconciler はレビューコレクション1スコープ分の同期を担う。
// movieIDが空の場合は「自分のレビュー」スコープとなる。
type ReviewReconciler struct {
	service ReviewService
	movieID string
	col     *collection
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time // テスト用に差し替え可能
}

// NewMovieReviews は指定した映画のレビュースコープを生成する。
func NewMovieReviews(service ReviewService, movieID string, recorder metrics.Recorder, logger *slog.Logger) *ReviewReconciler {
	return newReviewReconciler(service, movieID, recorder, logger)
}

// NewMyReviews は呼び出し元が所有するレビューのスコープを生成する。
func NewMyReviews(service ReviewService, recorder metrics.Recorder, logger *slog.Logger) *ReviewReconciler {
	return newReviewReconciler(service, "", recorder, logger)
}

func newReviewReconciler(service ReviewService, movieID string, recorder metrics.Recorder, logger *slog.Logger) *ReviewReconciler {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &ReviewReconciler{
		service: service,
		movieID: movieID,
		col:     newCollection(recorder),
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// Load はコレクション全体をリモートの最新状態で置き換える。
// 同一スコープへの並行ロードはlast-write-winsとなり、より後に開始された
// ロードの結果だけが反映される。
func (r *ReviewReconciler) Load(ctx context.Context) error {
	id := r.col.beginLoad()

	reviews, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("レビューのロードに失敗しました",
			slog.String("movie_id", r.movieID),
			slog.String("error", err.Error()),
		)
		return err
	}

	items := make([]model.ContentItem, len(reviews))
	for i, review := range reviews {
		items[i] = review
	}
	if !r.col.completeLoad(id, items) {
		r.logger.Debug("古いロード結果を破棄しました",
			slog.String("movie_id", r.movieID),
			slog.Int64("load_id", id),
		)
	}
	return nil
}

func (r *ReviewReconciler) fetch(ctx context.Context) ([]model.Review, error) {
	if r.movieID == "" {
		return r.service.ListMyReviews(ctx)
	}
	return r.service.ListMovieReviews(ctx, r.movieID)
}

// Create はレビューを検証のうえ作成し、成功時にサーバーが採番した
// レビューをコレクションの先頭に追加する。失敗時はコレクションを
// 変更せず、投機的な挿入も行わない。
func (r *ReviewReconciler) Create(ctx context.Context, draft model.ReviewDraft) (*model.Review, error) {
	if err := validateReviewDraft(draft); err != nil {
		return nil, err
	}

	created, err := r.service.CreateReview(ctx, draft)
	if err != nil {
		return nil, err
	}

	r.col.applyCreate(*created)
	r.metrics.RecordMutationApplied("review_create")
	return created, nil
}

// Update はレビューを部分更新する。サーバーが更新後のレビューを返した
// 場合はそれで置き換え、返さない場合はパッチをローカルにマージして
// ローカルの更新時刻を記録する。失敗時はコレクションを変更しない。
func (r *ReviewReconciler) Update(ctx context.Context, id string, patch model.ReviewPatch) error {
	if err := validateReviewPatch(patch); err != nil {
		return err
	}

	updated, err := r.service.PatchReview(ctx, id, patch)
	if err != nil {
		return err
	}

	r.col.applyUpdate(id, func(current model.ContentItem) model.ContentItem {
		if updated != nil {
			return *updated
		}
		review, ok := current.(model.Review)
		if !ok {
			return current
		}
		review.Text = patch.Text
		review.Rating = patch.Rating
		review.UpdatedAt = timestamp.FromTime(r.now())
		return review
	})
	r.metrics.RecordMutationApplied("review_update")
	return nil
}

// Remove はレビューを削除する。成功した場合のみコレクションから
// 取り除かれ、失敗時はアイテムが残る。
func (r *ReviewReconciler) Remove(ctx context.Context, id string) error {
	if err := r.service.DeleteReview(ctx, id); err != nil {
		return err
	}
	r.col.applyRemove(id)
	r.metrics.RecordMutationApplied("review_remove")
	return nil
}

// Reviews はコレクションの現在のスナップショットを返す。
func (r *ReviewReconciler) Reviews() []model.Review {
	items := r.col.snapshot()
	reviews := make([]model.Review, 0, len(items))
	for _, item := range items {
		if review, ok := item.(model.Review); ok {
			reviews = append(reviews, review)
		}
	}
	return reviews
}

// Close はスコープを破棄する。破棄後に完了した操作の結果は
// コレクションに適用されない。
func (r *ReviewReconciler) Close() {
	r.col.close()
}

// validateReviewDraft はレビュー作成前のローカル検証を行う。
// 違反時はネットワーク呼び出しなしでValidationErrorとなる。
func validateReviewDraft(draft model.ReviewDraft) error {
	if err := validateRating(draft.Rating); err != nil {
		return err
	}
	if strings.TrimSpace(draft.Text) == "" {
		return model.NewValidationError("レビュー本文を入力してください")
	}
	return nil
}

func validateReviewPatch(patch model.ReviewPatch) error {
	if err := validateRating(patch.Rating); err != nil {
		return err
	}
	if strings.TrimSpace(patch.Text) == "" {
		return model.NewValidationError("レビュー本文を入力してください")
	}
	return nil
}

func validateRating(rating int) error {
	if rating < model.RatingMin || rating > model.RatingMax {
		return model.NewValidationError("評価は0から10の整数で入力してください")
	}
	return nil
}
