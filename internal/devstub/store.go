// Package devstub は開発・統合テスト用のインメモリコンテンツサービスを提供する。
// 本番のコンテンツサービスと同じHTTP契約を実装し、タイムスタンプを
// 意図的に複数のエンコーディングで返すことで、クライアント側の正規化を
// 実際のトラフィックに近い形で検証できるようにする。
package devstub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stubPost はスタブが保持する投稿。createdAtは本番サービスの揺れを
// 再現するため任意のエンコーディングを保持する。
type stubPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Body      string `json:"body"`
	Featured  bool   `json:"featured"`
	Category  string `json:"category,omitempty"`
	Views     int    `json:"views"`
	CreatedAt any    `json:"createdAt"`
}

// stubReview はスタブが保持するレビュー。
type stubReview struct {
	ID         string `json:"id"`
	MovieID    string `json:"movieId"`
	MovieTitle string `json:"movieTitle"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
	UserEmail  string `json:"userEmail"`
	OwnerUID   string `json:"ownerUid,omitempty"`
	CreatedAt  any    `json:"createdAt"`
	UpdatedAt  any    `json:"updatedAt,omitempty"`
}

// stubMovie はスタブが保持する映画。
type stubMovie struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
}

// store は全データをメモリ上に保持する。
type store struct {
	mu      sync.RWMutex
	posts   []*stubPost
	reviews []*stubReview
	movies  []*stubMovie
	now     func() time.Time // テスト用に差し替え可能
}

func newStore() *store {
	s := &store{now: time.Now}
	s.seed()
	return s
}

// seed は開発用の初期データを投入する。
// タイムスタンプのエンコーディングはアイテムごとに意図的に変えてある。
func (s *store) seed() {
	now := s.now()

	s.posts = []*stubPost{
		{
			ID:       uuid.New().String(),
			Title:    "今月の注目作品",
			Excerpt:  "編集部が選ぶ今月の注目作品を紹介します。",
			Body:     "<p>編集部が選ぶ今月の注目作品を紹介します。</p>",
			Featured: true,
			Category: "特集",
			Views:    128,
			// オブジェクト形式 {seconds, nanoseconds}
			CreatedAt: map[string]any{
				"seconds":     now.Add(-48 * time.Hour).Unix(),
				"nanoseconds": 0,
			},
		},
		{
			ID:      uuid.New().String(),
			Title:   "レビューの書き方ガイド",
			Excerpt: "良いレビューを書くためのポイントをまとめました。",
			Body:    "<p>良いレビューを書くためのポイントをまとめました。</p>",
			Views:   56,
			// アンダースコア形式 {_seconds, _nanoseconds}
			CreatedAt: map[string]any{
				"_seconds":     now.Add(-72 * time.Hour).Unix(),
				"_nanoseconds": 0,
			},
		},
		{
			ID:      uuid.New().String(),
			Title:   "サイトリニューアルのお知らせ",
			Excerpt: "デザインを一新しました。",
			Body:    "<p>デザインを一新しました。</p>",
			Views:   310,
			// エポックミリ秒の数値形式
			CreatedAt: now.Add(-96 * time.Hour).UnixMilli(),
		},
	}

	s.reviews = []*stubReview{
		{
			ID:         uuid.New().String(),
			MovieID:    "27205",
			MovieTitle: "インセプション",
			Rating:     9,
			Text:       "何度観ても発見がある。",
			UserEmail:  "seed@example.com",
			OwnerUID:   "seed-user",
			// ISO 8601文字列形式
			CreatedAt: now.Add(-24 * time.Hour).Format(time.RFC3339),
		},
	}

	s.movies = []*stubMovie{
		{
			ID:          27205,
			Title:       "インセプション",
			Overview:    "他人の夢に潜入し、アイデアを盗み出すスペシャリストの物語。",
			ReleaseDate: "2010-07-16",
			VoteAverage: 8.4,
			PosterPath:  "/inception.jpg",
		},
		{
			ID:          157336,
			Title:       "インターステラー",
			Overview:    "人類の存亡を懸けて宇宙へ旅立つ元パイロットの物語。",
			ReleaseDate: "2014-11-07",
			VoteAverage: 8.5,
			PosterPath:  "/interstellar.jpg",
		},
		{
			ID:          603,
			Title:       "マトリックス",
			Overview:    "現実と仮想世界の境界を問うSFアクション。",
			ReleaseDate: "1999-03-31",
			VoteAverage: 8.2,
			PosterPath:  "/matrix.jpg",
		},
	}
}

func (s *store) listPosts(limit int) []*stubPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := make([]*stubPost, len(s.posts))
	copy(posts, s.posts)
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	return posts
}

func (s *store) getPost(id string) *stubPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *store) createPost(title, excerpt, body string, featured bool) *stubPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	post := &stubPost{
		ID:       uuid.New().String(),
		Title:    title,
		Excerpt:  excerpt,
		Body:     body,
		Featured: featured,
		// 新規作成はオブジェクト形式で返す
		CreatedAt: map[string]any{
			"seconds":     s.now().Unix(),
			"nanoseconds": 0,
		},
	}
	s.posts = append([]*stubPost{post}, s.posts...)
	return post
}

func (s *store) updatePost(id, title, excerpt, content string) *stubPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == id {
			p.Title = title
			p.Excerpt = excerpt
			p.Body = content
			return p
		}
	}
	return nil
}

func (s *store) deletePost(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.posts {
		if p.ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *store) listMovieReviews(movieID string) []*stubReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*stubReview
	for _, r := range s.reviews {
		if r.MovieID == movieID {
			out = append(out, r)
		}
	}
	return out
}

func (s *store) listReviewsByOwner(ownerUID string) []*stubReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*stubReview
	for _, r := range s.reviews {
		if r.OwnerUID == ownerUID {
			out = append(out, r)
		}
	}
	return out
}

func (s *store) createReview(movieID, movieTitle string, rating int, text, userEmail, ownerUID string) *stubReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	review := &stubReview{
		ID:         uuid.New().String(),
		MovieID:    movieID,
		MovieTitle: movieTitle,
		Rating:     rating,
		Text:       text,
		UserEmail:  userEmail,
		OwnerUID:   ownerUID,
		CreatedAt:  s.now().Format(time.RFC3339),
	}
	s.reviews = append([]*stubReview{review}, s.reviews...)
	return review
}

func (s *store) getReview(id string) *stubReview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviews {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *store) patchReview(id string, rating int, text string) *stubReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.ID == id {
			r.Rating = rating
			r.Text = text
			// 更新時刻はエポックミリ秒で返す
			r.UpdatedAt = s.now().UnixMilli()
			return r
		}
	}
	return nil
}

func (s *store) deleteReview(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.reviews {
		if r.ID == id {
			s.reviews = append(s.reviews[:i], s.reviews[i+1:]...)
			return true
		}
	}
	return false
}

func (s *store) getMovie(id int) *stubMovie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.movies {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *store) searchMovies(query string) []*stubMovie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []*stubMovie
	for _, m := range s.movies {
		if strings.Contains(strings.ToLower(m.Title), q) {
			out = append(out, m)
		}
	}
	return out
}

func (s *store) popularMovies() []*stubMovie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	movies := make([]*stubMovie, len(s.movies))
	copy(movies, s.movies)
	return movies
}
