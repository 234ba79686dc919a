package app

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/cinelog/internal/devstub"
	"github.com/hitoshi/cinelog/internal/logger"
	"github.com/hitoshi/cinelog/internal/metrics"
)

// newStubBackend はスタブコンテンツサービスを起動し、環境変数を
// そのサービスに向ける。
func newStubBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	server := httptest.NewServer(devstub.NewServer(logger.Setup(&buf)).Handler(nil))
	t.Cleanup(server.Close)

	t.Setenv("BACKEND_BASE_URL", server.URL)
	t.Setenv("IDENTITY_REFRESH_TOKEN", "")
	return server
}

func TestRun_Posts_ListsSeedData(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"posts"}); err != nil {
		t.Fatalf("Run(posts) がエラーを返した: %v", err)
	}

	if !strings.Contains(out.String(), "今月の注目作品") {
		t.Errorf("出力に初期データの投稿が含まれていない:\n%s", out.String())
	}
}

func TestRun_Posts_WithLimit(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"posts", "-limit", "1"}); err != nil {
		t.Fatalf("Run(posts -limit 1) がエラーを返した: %v", err)
	}

	lines := strings.Count(strings.TrimRight(out.String(), "\n"), "\n") + 1
	if lines != 1 {
		t.Errorf("出力行数 = %d, want 1:\n%s", lines, out.String())
	}
}

func TestRun_Search_PrintsResults(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"search", "マトリックス"}); err != nil {
		t.Fatalf("Run(search) がエラーを返した: %v", err)
	}
	if !strings.Contains(out.String(), "マトリックス") {
		t.Errorf("検索結果にタイトルが含まれていない:\n%s", out.String())
	}
}

func TestRun_Movie_PrintsPosterURL(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"movie", "27205"}); err != nil {
		t.Fatalf("Run(movie) がエラーを返した: %v", err)
	}
	if !strings.Contains(out.String(), "https://image.tmdb.org/t/p/") {
		t.Errorf("出力にポスターURLが含まれていない:\n%s", out.String())
	}
}

func TestRun_Reviews_ListsMovieReviews(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"reviews", "27205"}); err != nil {
		t.Fatalf("Run(reviews) がエラーを返した: %v", err)
	}
	if !strings.Contains(out.String(), "インセプション") {
		t.Errorf("出力にレビューが含まれていない:\n%s", out.String())
	}
}

func TestRun_ReviewAdd_WithoutSession_FailsWithoutNetworkCall(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	err := Run(&logBuf, &out, []string{
		"review-add", "-movie", "27205", "-rating", "8", "-text", "良い映画",
	})
	if err == nil {
		t.Fatal("セッションなしのreview-addはエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "サインイン") {
		t.Errorf("エラーメッセージ = %q, want サインイン関連", err.Error())
	}
}

func TestRun_ReviewAdd_InvalidRating_FailsValidation(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	err := Run(&logBuf, &out, []string{
		"review-add", "-movie", "27205", "-rating", "11", "-text", "良い映画",
	})
	if err == nil {
		t.Fatal("範囲外の評価はエラーを返すべき")
	}
}

func TestRun_InvalidBaseURL_ReturnsError(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "not-a-url")

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"posts"}); err == nil {
		t.Fatal("不正なベースURLでの起動はエラーを返すべき")
	}
}

func TestRun_Post_MissingArgument(t *testing.T) {
	newStubBackend(t)

	var logBuf, out bytes.Buffer
	if err := Run(&logBuf, &out, []string{"post"}); err == nil {
		t.Fatal("ID未指定のpostはエラーを返すべき")
	}
}

func TestBuildClientDeps_WiresMetricsCollector(t *testing.T) {
	newStubBackend(t)

	var logBuf bytes.Buffer
	cfg, err := Init(&logBuf)
	if err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}

	deps := buildClientDeps(context.Background(), cfg)

	if _, ok := deps.recorder.(*metrics.Collector); !ok {
		t.Fatalf("recorder の型 = %T, want *metrics.Collector", deps.recorder)
	}
	if deps.registry == nil {
		t.Fatal("registry がワイヤリングされていない")
	}

	// クライアント経由の読み取りがリクエストメトリクスとして記録される
	if _, err := deps.client.ListPosts(context.Background(), 1); err != nil {
		t.Fatalf("ListPosts がエラーを返した: %v", err)
	}

	families, err := deps.registry.Gather()
	if err != nil {
		t.Fatalf("メトリクスの収集に失敗した: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "cinelog_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("cinelog_requests_total がレジストリに記録されていない")
	}
}
