// Package app はアプリケーションの起動と依存関係のワイヤリングを担う。
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/cinelog/internal/config"
	"github.com/hitoshi/cinelog/internal/devstub"
	"github.com/hitoshi/cinelog/internal/gateway"
	"github.com/hitoshi/cinelog/internal/identity"
	"github.com/hitoshi/cinelog/internal/logger"
	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/poster"
	"github.com/hitoshi/cinelog/internal/redirect"
	"github.com/hitoshi/cinelog/internal/security"
	syncpkg "github.com/hitoshi/cinelog/internal/sync"
)

// ゲートウェイが各コンシューマーのインターフェースを満たすことの
// コンパイル時チェック
var (
	_ syncpkg.ReviewService   = (*gateway.Client)(nil)
	_ syncpkg.PostService     = (*gateway.Client)(nil)
	_ redirect.FeaturedSource = (*gateway.Client)(nil)
	_ gateway.SessionSource   = (*identity.Watcher)(nil)
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで実行する。
// argsにはos.Args[1:]を渡す。結果はstdoutへ、ログはlogWへ出力される。
func Run(logW, stdout io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("DEVSTUB_PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(logW)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("base_url", cfg.BackendBaseURL),
	)

	if cmd == CommandDevstub {
		return runDevstub(cfg)
	}

	rest := args
	if len(rest) > 0 {
		rest = rest[1:]
	}
	return runClient(cfg, cmd, rest, stdout)
}

// runDevstub はスタブコンテンツサービスモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runDevstub(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	stub := devstub.NewServer(logger.With("devstub"))

	server := &http.Server{
		Addr:         ":" + cfg.DevstubPort,
		Handler:      stub.Handler(registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("stub content service starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down stub content service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stub content service stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// clientDeps はクライアントコマンドの依存関係をまとめた構造体。
type clientDeps struct {
	client   *gateway.Client
	watcher  *identity.Watcher
	cfg      *config.Config
	recorder metrics.Recorder
	registry *prometheus.Registry
}

// buildClientDeps は全クライアント依存関係をワイヤリングする。
// 資格情報が設定されている場合はIDプロバイダーへサインインし、
// セッションをウォッチャーに発行する。サインイン失敗は警告に留め、
// 未認証のまま続行する（読み取り系は認証不要のため）。
func buildClientDeps(ctx context.Context, cfg *config.Config) *clientDeps {
	watcher := identity.NewWatcher()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	if cfg.IdentityRefreshToken != "" {
		provider := identity.NewProvider(identity.ProviderConfig{
			APIKey:   cfg.IdentityAPIKey,
			TokenURL: cfg.IdentityTokenURL,
		}, httpClient, watcher, logger.With("identity"))

		if _, err := provider.SignIn(ctx, cfg.IdentityRefreshToken); err != nil {
			slog.Warn("サインインに失敗しました。未認証のまま続行します",
				slog.String("error", err.Error()),
			)
		}
	}

	sanitizer := security.NewContentSanitizer()
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	client := gateway.NewClient(
		cfg.BackendBaseURL,
		httpClient,
		watcher,
		sanitizer,
		limiter,
		recorder,
		logger.With("gateway"),
	)

	return &clientDeps{
		client:   client,
		watcher:  watcher,
		cfg:      cfg,
		recorder: recorder,
		registry: registry,
	}
}

// runClient はクライアントコマンドを実行する。
func runClient(cfg *config.Config, cmd Command, args []string, stdout io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := buildClientDeps(ctx, cfg)

	switch cmd {
	case CommandPosts:
		return cmdPosts(ctx, deps, args, stdout)
	case CommandPost:
		return cmdPost(ctx, deps, args, stdout)
	case CommandSearch:
		return cmdSearch(ctx, deps, args, stdout)
	case CommandPopular:
		return cmdPopular(ctx, deps, stdout)
	case CommandMovie:
		return cmdMovie(ctx, deps, args, stdout)
	case CommandReviews:
		return cmdReviews(ctx, deps, args, stdout)
	case CommandMyReviews:
		return cmdMyReviews(ctx, deps, stdout)
	case CommandFeatured:
		return cmdFeatured(ctx, deps, stdout)
	case CommandPostCreate:
		return cmdPostCreate(ctx, deps, args, stdout)
	case CommandPostEdit:
		return cmdPostEdit(ctx, deps, args, stdout)
	case CommandPostDelete:
		return cmdPostDelete(ctx, deps, args, stdout)
	case CommandReviewAdd:
		return cmdReviewAdd(ctx, deps, args, stdout)
	case CommandReviewEdit:
		return cmdReviewEdit(ctx, deps, args, stdout)
	case CommandReviewDelete:
		return cmdReviewDelete(ctx, deps, args, stdout)
	default:
		return cmdPosts(ctx, deps, args, stdout)
	}
}

func cmdPosts(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("posts", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "取得件数の上限")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec := syncpkg.NewPosts(deps.client, *limit, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Load(ctx); err != nil {
		return describeError(err)
	}

	for _, post := range rec.Posts() {
		marker := " "
		if post.Featured {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s  %-12s  %s\n", marker, post.ID, post.CreatedAt.Display(), post.Title)
	}
	return nil
}

func cmdPost(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: post <id>")
	}

	post, err := deps.client.GetPost(ctx, args[0])
	if err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "%s\n", post.Title)
	fmt.Fprintf(stdout, "日付: %s  閲覧数: %d\n", post.CreatedAt.Display(), post.Views)
	if post.Excerpt != "" {
		fmt.Fprintf(stdout, "%s\n", post.Excerpt)
	}
	fmt.Fprintf(stdout, "\n%s\n", post.BodyText())
	return nil
}

func cmdSearch(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: search <クエリ>")
	}

	movies, err := deps.client.SearchMovies(ctx, args[0])
	if err != nil {
		return describeError(err)
	}

	printMovies(stdout, movies)
	return nil
}

func cmdPopular(ctx context.Context, deps *clientDeps, stdout io.Writer) error {
	movies, err := deps.client.PopularMovies(ctx)
	if err != nil {
		return describeError(err)
	}

	printMovies(stdout, movies)
	return nil
}

func printMovies(stdout io.Writer, movies []model.Movie) {
	for _, m := range movies {
		fmt.Fprintf(stdout, "%d  %-10s  %.1f  %s\n", m.ID, m.ReleaseDate, m.VoteAverage, m.Title)
	}
}

func cmdMovie(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: movie <id>")
	}

	movie, err := deps.client.GetMovie(ctx, args[0])
	if err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "%s (%s)\n", movie.Title, movie.ReleaseDate)
	fmt.Fprintf(stdout, "評価: %.1f\n", movie.VoteAverage)
	if url := poster.ImageURL(movie.PosterPath, poster.SizeMedium); url != "" {
		fmt.Fprintf(stdout, "ポスター: %s\n", url)
	}
	fmt.Fprintf(stdout, "\n%s\n", movie.Overview)
	return nil
}

func cmdReviews(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: reviews <映画ID>")
	}

	rec := syncpkg.NewMovieReviews(deps.client, args[0], deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Load(ctx); err != nil {
		return describeError(err)
	}

	printReviews(stdout, rec.Reviews())
	return nil
}

func cmdMyReviews(ctx context.Context, deps *clientDeps, stdout io.Writer) error {
	rec := syncpkg.NewMyReviews(deps.client, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Load(ctx); err != nil {
		return describeError(err)
	}

	printReviews(stdout, rec.Reviews())
	return nil
}

func printReviews(stdout io.Writer, reviews []model.Review) {
	for _, r := range reviews {
		fmt.Fprintf(stdout, "%s  %-12s  %2d/10  %s\n", r.ID, r.CreatedAt.Display(), r.Rating, r.MovieTitle)
		fmt.Fprintf(stdout, "    %s\n", r.Text)
	}
}

// cmdFeatured は注目投稿を取得し、カウントダウン後に遷移先を表示する。
// Ctrl-Cでカウントダウンを中断できる。
func cmdFeatured(ctx context.Context, deps *clientDeps, stdout io.Writer) error {
	controller := redirect.NewController(deps.client, func(target string) {
		fmt.Fprintf(stdout, "→ %s\n", target)
	}, deps.cfg.RedirectCountdownSeconds, logger.With("redirect"))

	controller.Start(ctx)

	select {
	case <-ctx.Done():
		controller.Stop()
		fmt.Fprintln(stdout, "リダイレクトを中断しました")
		return nil
	case <-controller.Done():
	}

	switch controller.State() {
	case redirect.StateEmpty:
		fmt.Fprintln(stdout, "注目投稿はありません")
	case redirect.StateErrored:
		return fmt.Errorf("注目投稿の取得に失敗しました")
	case redirect.StateNavigated:
		if post := controller.Post(); post != nil {
			fmt.Fprintf(stdout, "注目投稿: %s\n", post.Title)
		}
	}
	return nil
}

func cmdPostCreate(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("post-create", flag.ContinueOnError)
	title := fs.String("title", "", "タイトル（必須）")
	body := fs.String("body", "", "本文")
	excerpt := fs.String("excerpt", "", "抜粋（省略時は本文から自動生成）")
	featured := fs.Bool("featured", false, "注目投稿にする")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec := syncpkg.NewPosts(deps.client, 0, deps.recorder, logger.With("sync"))
	defer rec.Close()

	created, err := rec.Create(ctx, model.PostDraft{
		Title:    *title,
		Excerpt:  *excerpt,
		Body:     *body,
		Featured: *featured,
	})
	if err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "投稿を作成しました: %s\n", created.ID)
	return nil
}

func cmdPostEdit(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("post-edit", flag.ContinueOnError)
	title := fs.String("title", "", "タイトル（必須）")
	excerpt := fs.String("excerpt", "", "抜粋")
	content := fs.String("content", "", "本文")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("使い方: post-edit <id> -title <タイトル> [-excerpt <抜粋>] [-content <本文>]")
	}

	rec := syncpkg.NewPosts(deps.client, 0, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Update(ctx, fs.Arg(0), model.PostUpdate{
		Title:   *title,
		Excerpt: *excerpt,
		Content: *content,
	}); err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "投稿を更新しました: %s\n", fs.Arg(0))
	return nil
}

func cmdPostDelete(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: post-delete <id>")
	}

	rec := syncpkg.NewPosts(deps.client, 0, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Remove(ctx, args[0]); err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "投稿を削除しました: %s\n", args[0])
	return nil
}

func cmdReviewAdd(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("review-add", flag.ContinueOnError)
	movieID := fs.String("movie", "", "映画ID（必須）")
	movieTitle := fs.String("movie-title", "", "映画タイトル")
	ratingFlag := fs.Int("rating", -1, "評価（0〜10）")
	text := fs.String("text", "", "レビュー本文")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *movieID == "" {
		return fmt.Errorf("使い方: review-add -movie <映画ID> -rating <0-10> -text <本文>")
	}

	rec := syncpkg.NewMovieReviews(deps.client, *movieID, deps.recorder, logger.With("sync"))
	defer rec.Close()

	created, err := rec.Create(ctx, model.ReviewDraft{
		MovieID:    *movieID,
		MovieTitle: *movieTitle,
		Rating:     *ratingFlag,
		Text:       *text,
	})
	if err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "レビューを作成しました: %s\n", created.ID)
	return nil
}

func cmdReviewEdit(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("review-edit", flag.ContinueOnError)
	ratingFlag := fs.Int("rating", -1, "評価（0〜10）")
	text := fs.String("text", "", "レビュー本文")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("使い方: review-edit <id> -rating <0-10> -text <本文>")
	}

	rec := syncpkg.NewMyReviews(deps.client, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Update(ctx, fs.Arg(0), model.ReviewPatch{
		Text:   *text,
		Rating: *ratingFlag,
	}); err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "レビューを更新しました: %s\n", fs.Arg(0))
	return nil
}

func cmdReviewDelete(ctx context.Context, deps *clientDeps, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("使い方: review-delete <id>")
	}

	rec := syncpkg.NewMyReviews(deps.client, deps.recorder, logger.With("sync"))
	defer rec.Close()

	if err := rec.Remove(ctx, args[0]); err != nil {
		return describeError(err)
	}

	fmt.Fprintf(stdout, "レビューを削除しました: %s\n", args[0])
	return nil
}

// describeError は分類済みエラーを利用者向けメッセージに変換する。
// 分類外のエラーはそのまま返す。
func describeError(err error) error {
	var ce *model.ClientError
	if errors.As(err, &ce) {
		return fmt.Errorf("%s", ce.UserMessage())
	}
	return err
}
