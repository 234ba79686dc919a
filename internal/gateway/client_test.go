package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/cinelog/internal/identity"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/security"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockTokenSource はテスト用の証明トークンソース。
type mockTokenSource struct {
	proofTokenFunc func(ctx context.Context) (string, error)
	calls          atomic.Int64
}

func (m *mockTokenSource) ProofToken(ctx context.Context) (string, error) {
	m.calls.Add(1)
	return m.proofTokenFunc(ctx)
}

// mockSessionSource はテスト用のセッション参照。
type mockSessionSource struct {
	session *identity.Session
}

func (m *mockSessionSource) Current() *identity.Session {
	return m.session
}

func newTestClient(serverURL string, sessions SessionSource) *Client {
	var buf bytes.Buffer
	return NewClient(serverURL, http.DefaultClient, sessions, nil, nil, nil, newTestLogger(&buf))
}

func authedSessions(token string) (*mockSessionSource, *mockTokenSource) {
	source := &mockTokenSource{
		proofTokenFunc: func(ctx context.Context) (string, error) {
			return token, nil
		},
	}
	session := identity.NewSession("user@example.com", "uid-1", source)
	return &mockSessionSource{session: session}, source
}

func TestClient_ListPosts_NoAuthRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/posts" {
			t.Errorf("パス = %s, want /api/posts", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("読み取り系リクエストにAuthorizationヘッダーが付与されている")
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit = %s, want 5", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Post{
			{ID: "p1", Title: "最初の投稿"},
			{ID: "p2", Title: "二番目の投稿"},
		})
	}))
	defer server.Close()

	// セッション不在でも読み取りは成功する
	c := newTestClient(server.URL, &mockSessionSource{session: nil})

	posts, err := c.ListPosts(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListPosts がエラーを返した: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("投稿数 = %d, want 2", len(posts))
	}
	if posts[0].ID != "p1" {
		t.Errorf("ID = %s, want p1", posts[0].ID)
	}
}

func TestClient_CreateReview_WithoutSession_NoNetworkCall(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL, &mockSessionSource{session: nil})

	_, err := c.CreateReview(context.Background(), model.ReviewDraft{
		MovieID: "m1",
		Rating:  8,
		Text:    "良い映画",
	})
	if !model.IsUnauthorized(err) {
		t.Fatalf("エラー = %v, want Unauthorized", err)
	}
	if requests.Load() != 0 {
		t.Errorf("セッション不在の変更系呼び出しでネットワークリクエストが %d 回発生した", requests.Load())
	}
}

func TestClient_CreateReview_AttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer proof-token-1" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer proof-token-1")
		}

		var draft model.ReviewDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗した: %v", err)
		}
		if draft.MovieID != "m1" || draft.Rating != 8 {
			t.Errorf("ドラフト = %+v", draft)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Review{ID: "r1", MovieID: draft.MovieID, Rating: draft.Rating, Text: draft.Text})
	}))
	defer server.Close()

	sessions, _ := authedSessions("proof-token-1")
	c := newTestClient(server.URL, sessions)

	created, err := c.CreateReview(context.Background(), model.ReviewDraft{
		MovieID: "m1", MovieTitle: "映画", Rating: 8, Text: "良い映画",
	})
	if err != nil {
		t.Fatalf("CreateReview がエラーを返した: %v", err)
	}
	if created.ID != "r1" {
		t.Errorf("ID = %s, want r1", created.ID)
	}
}

func TestClient_Mutations_FetchFreshTokenPerCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Review{ID: "r1"})
	}))
	defer server.Close()

	sessions, source := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.CreateReview(ctx, model.ReviewDraft{MovieID: "m1", Rating: 5, Text: "t"}); err != nil {
			t.Fatalf("CreateReview がエラーを返した: %v", err)
		}
	}

	// トークンはキャッシュされず、呼び出しごとに新規取得される
	if got := source.calls.Load(); got != 3 {
		t.Errorf("トークン取得回数 = %d, want 3", got)
	}
}

func TestClient_ServerError_MapsToRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "他人のレビューは編集できません"})
	}))
	defer server.Close()

	sessions, _ := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	_, err := c.PatchReview(context.Background(), "r1", model.ReviewPatch{Text: "更新", Rating: 7})
	if !model.IsRejected(err) {
		t.Fatalf("エラー = %v, want Rejected", err)
	}

	var ce *model.ClientError
	if !errors.As(err, &ce) {
		t.Fatal("ClientError に変換できない")
	}
	if ce.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", ce.Status, http.StatusForbidden)
	}
	if ce.ServerMessage != "他人のレビューは編集できません" {
		t.Errorf("ServerMessage = %q", ce.ServerMessage)
	}
}

func TestClient_TransportFailure_MapsToUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 即座に閉じて接続不能にする

	c := newTestClient(server.URL, &mockSessionSource{session: nil})

	_, err := c.ListPosts(context.Background(), 0)
	if !model.IsUnreachable(err) {
		t.Fatalf("エラー = %v, want Unreachable", err)
	}
}

func TestClient_MalformedSuccessBody_MapsToUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{壊れたJSON"))
	}))
	defer server.Close()

	c := newTestClient(server.URL, &mockSessionSource{session: nil})

	_, err := c.GetPost(context.Background(), "p1")
	if !model.IsUnreachable(err) {
		t.Fatalf("エラー = %v, want Unreachable", err)
	}
}

func TestClient_NoAutomaticRetry(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sessions, _ := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	if err := c.DeleteReview(context.Background(), "r1"); !model.IsRejected(err) {
		t.Fatalf("エラー = %v, want Rejected", err)
	}

	// 失敗してもリトライは行われない
	if requests.Load() != 1 {
		t.Errorf("リクエスト回数 = %d, want 1", requests.Load())
	}
}

func TestClient_ListMyReviews_RequiresSession(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Review{{ID: "r1"}})
	}))
	defer server.Close()

	// セッション不在はネットワークなしでUnauthorized
	c := newTestClient(server.URL, &mockSessionSource{session: nil})
	if _, err := c.ListMyReviews(context.Background()); !model.IsUnauthorized(err) {
		t.Fatalf("エラー = %v, want Unauthorized", err)
	}
	if requests.Load() != 0 {
		t.Errorf("セッション不在でリクエストが %d 回発生した", requests.Load())
	}

	// セッションありはBearer付きで成功する
	sessions, _ := authedSessions("token")
	c = newTestClient(server.URL, sessions)
	reviews, err := c.ListMyReviews(context.Background())
	if err != nil {
		t.Fatalf("ListMyReviews がエラーを返した: %v", err)
	}
	if len(reviews) != 1 {
		t.Errorf("レビュー数 = %d, want 1", len(reviews))
	}
}

func TestClient_CreatePost_GeneratesExcerpt(t *testing.T) {
	longBody := strings.Repeat("あ", 200)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var draft model.PostDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗した: %v", err)
		}

		// 抜粋は本文先頭160文字から自動生成される
		want := strings.Repeat("あ", 160) + "..."
		if draft.Excerpt != want {
			t.Errorf("抜粋の長さ = %d", len([]rune(draft.Excerpt)))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Post{ID: "p1", Title: draft.Title, Excerpt: draft.Excerpt, Body: draft.Body})
	}))
	defer server.Close()

	sessions, _ := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	created, err := c.CreatePost(context.Background(), model.PostDraft{
		Title: "新しい投稿",
		Body:  longBody,
	})
	if err != nil {
		t.Fatalf("CreatePost がエラーを返した: %v", err)
	}
	if created.ID != "p1" {
		t.Errorf("ID = %s, want p1", created.ID)
	}
}

func TestClient_CreatePost_KeepsExplicitExcerpt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var draft model.PostDraft
		json.NewDecoder(r.Body).Decode(&draft)
		if draft.Excerpt != "手動の抜粋" {
			t.Errorf("抜粋 = %q, want %q", draft.Excerpt, "手動の抜粋")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Post{ID: "p1"})
	}))
	defer server.Close()

	sessions, _ := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	if _, err := c.CreatePost(context.Background(), model.PostDraft{
		Title:   "投稿",
		Excerpt: "手動の抜粋",
		Body:    "本文",
	}); err != nil {
		t.Fatalf("CreatePost がエラーを返した: %v", err)
	}
}

func TestClient_SanitizesPostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Post{
			ID:   "p1",
			Body: `<p>安全な段落</p><script>alert("xss")</script>`,
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.URL, http.DefaultClient, &mockSessionSource{session: nil},
		security.NewContentSanitizer(), nil, nil, newTestLogger(&buf))

	post, err := c.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPost がエラーを返した: %v", err)
	}
	if strings.Contains(post.Body, "<script>") {
		t.Errorf("本文にscriptタグが残っている: %q", post.Body)
	}
	if !strings.Contains(post.Body, "安全な段落") {
		t.Errorf("安全な本文が失われた: %q", post.Body)
	}
}

func TestClient_SearchMovies_ParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("パス = %s, want /api/search", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "インセプション" {
			t.Errorf("q = %s", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.MovieList{Results: []model.Movie{
			{ID: 27205, Title: "インセプション"},
		}})
	}))
	defer server.Close()

	c := newTestClient(server.URL, &mockSessionSource{session: nil})

	movies, err := c.SearchMovies(context.Background(), "インセプション")
	if err != nil {
		t.Fatalf("SearchMovies がエラーを返した: %v", err)
	}
	if len(movies) != 1 || movies[0].ID != 27205 {
		t.Errorf("検索結果 = %+v", movies)
	}
}

func TestClient_UpdatePost_EmptyBodyReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("HTTPメソッド = %s, want PUT", r.Method)
		}
		// サーバーが更新後の投稿を返さないケース
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	sessions, _ := authedSessions("token")
	c := newTestClient(server.URL, sessions)

	updated, err := c.UpdatePost(context.Background(), "p1", model.PostUpdate{
		Title: "更新後", Excerpt: "抜粋", Content: "本文",
	})
	if err != nil {
		t.Fatalf("UpdatePost がエラーを返した: %v", err)
	}
	if updated != nil {
		t.Errorf("更新後の投稿 = %+v, want nil", updated)
	}
}

// failureSpy は失敗メトリクスのコードを捕捉するRecorder。
type failureSpy struct {
	codes []string
}

func (s *failureSpy) RecordRequest(string, int)                  {}
func (s *failureSpy) RecordRequestFailure(_ string, code string) { s.codes = append(s.codes, code) }
func (s *failureSpy) RecordRequestLatency(string, time.Duration) {}
func (s *failureSpy) RecordMutationApplied(string)               {}
func (s *failureSpy) RecordStaleLoadDiscarded()                  {}

func TestClient_ProofTokenFailure_MapsToUnreachable(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := &mockTokenSource{
		proofTokenFunc: func(ctx context.Context) (string, error) {
			return "", errors.New("token endpoint timeout")
		},
	}
	session := identity.NewSession("user@example.com", "uid-1", source)

	spy := &failureSpy{}
	var buf bytes.Buffer
	c := NewClient(server.URL, http.DefaultClient, &mockSessionSource{session: session},
		nil, nil, spy, newTestLogger(&buf))

	_, err := c.CreateReview(context.Background(), model.ReviewDraft{
		MovieID: "m1",
		Rating:  7,
		Text:    "面白かった",
	})

	// セッションは存在するため、トークン取得の失敗はUnauthorizedではなく
	// Unreachableとして分類される
	if !model.IsUnreachable(err) {
		t.Fatalf("エラー = %v, want Unreachable", err)
	}
	if model.IsUnauthorized(err) {
		t.Error("トークン取得失敗がUnauthorizedに分類された")
	}
	if requests.Load() != 0 {
		t.Errorf("トークン取得失敗後にネットワークリクエストが %d 回発生した", requests.Load())
	}
	if len(spy.codes) != 1 || spy.codes[0] != model.ErrCodeUnreachable {
		t.Errorf("失敗メトリクスのコード = %v, want [%s]", spy.codes, model.ErrCodeUnreachable)
	}
}
