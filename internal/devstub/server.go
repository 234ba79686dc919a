package devstub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cinelog/internal/metrics"
)

// Server はスタブコンテンツサービスのHTTPサーバー。
type Server struct {
	store   *store
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewServer はServerの新しいインスタンスを生成する。
// 開発用の初期データが投入された状態で返る。
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		store:   newStore(),
		logger:  logger,
		metrics: metrics.NopRecorder{},
	}
}

// Handler は全エンドポイントのルーティングを構成したchi.Routerを返す。
// registryが非nilの場合はリクエストメトリクスを収集し、/metricsで
// Prometheus形式のメトリクスを公開する。
func (s *Server) Handler(registry *prometheus.Registry) http.Handler {
	if registry != nil {
		s.metrics = metrics.NewCollector(registry)
	}

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Use(s.collectMetrics)

		// --- 認証不要のルート ---
		r.Get("/posts", s.listPosts)
		r.Get("/posts/{id}", s.getPost)
		r.Get("/movie/{id}", s.getMovie)
		r.Get("/search", s.searchMovies)
		r.Get("/popular", s.popularMovies)
		r.Get("/reviews/movie/{id}", s.listMovieReviews)

		// --- Bearerトークンが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Post("/posts", s.createPost)
			r.Put("/posts/{id}", s.updatePost)
			r.Delete("/posts/{id}", s.deletePost)
			r.Post("/reviews", s.createReview)
			r.Patch("/reviews/{id}", s.patchReview)
			r.Delete("/reviews/{id}", s.deleteReview)
			r.Get("/my-reviews", s.listMyReviews)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	}

	return r
}

// collectMetrics はAPIリクエストの完了ステータスとレイテンシを記録する
// ミドルウェア。操作ラベルにはメソッドとルートパターンを用いる。
func (s *Server) collectMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		operation := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		s.metrics.RecordRequest(operation, ww.Status())
		s.metrics.RecordRequestLatency(operation, time.Since(start))
	})
}

// requireBearer は空でないBearerトークンを要求するミドルウェア。
// スタブのためトークンの検証は行わず、トークン文字列をそのまま
// 呼び出し元の識別子として扱う。
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			writeError(w, http.StatusUnauthorized, "認証が必要です")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// callerIdentity はBearerトークンから呼び出し元の識別子を導出する。
func callerIdentity(r *http.Request) (uid, email string) {
	token := bearerToken(r)
	return token, token + "@dev.local"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// listPosts は投稿一覧を返す。
// GET /api/posts?limit=N
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limitは0以上の整数で指定してください")
			return
		}
		limit = n
	}
	posts := s.store.listPosts(limit)
	if posts == nil {
		posts = []*stubPost{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// getPost は投稿を1件返す。
// GET /api/posts/:id
func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post := s.store.getPost(chi.URLParam(r, "id"))
	if post == nil {
		writeError(w, http.StatusNotFound, "投稿が見つかりません")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type createPostRequest struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Body     string `json:"body"`
	Featured bool   `json:"featured"`
}

// createPost は投稿を作成する。
// POST /api/posts
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "タイトルは必須です")
		return
	}
	post := s.store.createPost(req.Title, req.Excerpt, req.Body, req.Featured)
	s.logger.Info("投稿を作成しました", slog.String("post_id", post.ID))
	writeJSON(w, http.StatusCreated, post)
}

type updatePostRequest struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
}

// updatePost は投稿を置換する。
// PUT /api/posts/:id
func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "タイトルは必須です")
		return
	}
	post := s.store.updatePost(chi.URLParam(r, "id"), req.Title, req.Excerpt, req.Content)
	if post == nil {
		writeError(w, http.StatusNotFound, "投稿が見つかりません")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// deletePost は投稿を削除する。
// DELETE /api/posts/:id
func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	if !s.store.deletePost(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "投稿が見つかりません")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// getMovie は映画詳細を返す。
// GET /api/movie/:id
func (s *Server) getMovie(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "映画IDは整数で指定してください")
		return
	}
	movie := s.store.getMovie(id)
	if movie == nil {
		writeError(w, http.StatusNotFound, "映画が見つかりません")
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

// searchMovies はタイトルの部分一致で映画を検索する。
// GET /api/search?q=
func (s *Server) searchMovies(w http.ResponseWriter, r *http.Request) {
	results := s.store.searchMovies(r.URL.Query().Get("q"))
	if results == nil {
		results = []*stubMovie{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// popularMovies は人気映画の一覧を返す。
// GET /api/popular
func (s *Server) popularMovies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"results": s.store.popularMovies()})
}

// listMovieReviews は映画に紐づくレビュー一覧を返す。
// GET /api/reviews/movie/:id
func (s *Server) listMovieReviews(w http.ResponseWriter, r *http.Request) {
	reviews := s.store.listMovieReviews(chi.URLParam(r, "id"))
	if reviews == nil {
		reviews = []*stubReview{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// listMyReviews は呼び出し元が所有するレビュー一覧を返す。
// GET /api/my-reviews
func (s *Server) listMyReviews(w http.ResponseWriter, r *http.Request) {
	uid, _ := callerIdentity(r)
	reviews := s.store.listReviewsByOwner(uid)
	if reviews == nil {
		reviews = []*stubReview{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

type createReviewRequest struct {
	MovieID    string `json:"movieId"`
	MovieTitle string `json:"movieTitle"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
}

// createReview はレビューを作成する。
// POST /api/reviews
func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if req.MovieID == "" {
		writeError(w, http.StatusBadRequest, "movieIdは必須です")
		return
	}
	if req.Rating < 0 || req.Rating > 10 {
		writeError(w, http.StatusBadRequest, "評価は0から10の範囲で指定してください")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "レビュー本文は必須です")
		return
	}

	uid, email := callerIdentity(r)
	review := s.store.createReview(req.MovieID, req.MovieTitle, req.Rating, req.Text, email, uid)
	s.logger.Info("レビューを作成しました",
		slog.String("review_id", review.ID),
		slog.String("movie_id", review.MovieID),
	)
	writeJSON(w, http.StatusCreated, review)
}

type patchReviewRequest struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

// patchReview はレビューを部分更新する。所有者のみ更新できる。
// PATCH /api/reviews/:id
func (s *Server) patchReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing := s.store.getReview(id)
	if existing == nil {
		writeError(w, http.StatusNotFound, "レビューが見つかりません")
		return
	}

	uid, _ := callerIdentity(r)
	if existing.OwnerUID != uid {
		writeError(w, http.StatusForbidden, "他人のレビューは編集できません")
		return
	}

	var req patchReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました")
		return
	}
	if req.Rating < 0 || req.Rating > 10 {
		writeError(w, http.StatusBadRequest, "評価は0から10の範囲で指定してください")
		return
	}

	review := s.store.patchReview(id, req.Rating, req.Text)
	writeJSON(w, http.StatusOK, review)
}

// deleteReview はレビューを削除する。所有者のみ削除できる。
// DELETE /api/reviews/:id
func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing := s.store.getReview(id)
	if existing == nil {
		writeError(w, http.StatusNotFound, "レビューが見つかりません")
		return
	}

	uid, _ := callerIdentity(r)
	if existing.OwnerUID != uid {
		writeError(w, http.StatusForbidden, "他人のレビューは削除できません")
		return
	}

	s.store.deleteReview(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
