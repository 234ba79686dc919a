// Package poster は映画ポスター画像のURL構築と取得を提供する。
package poster

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// imageBaseURL はポスター画像配信サービスのベースURL。
const imageBaseURL = "https://image.tmdb.org/t/p/"

// ポスター画像の標準サイズ。
const (
	SizeSmall    = "w200"
	SizeMedium   = "w500"
	SizeOriginal = "original"
)

// defaultMaxImageSize はポスター画像の最大サイズ（5MB）。
const defaultMaxImageSize = 5 * 1024 * 1024

// defaultTimeout はポスター画像取得のタイムアウト。
const defaultTimeout = 10 * time.Second

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ImageURL はポスターパスから画像URLを構築する。
// パスはサービスのレスポンス由来で、先頭スラッシュの有無が揺れるため
// どちらでも受け付ける。パスが空の場合は空文字を返す。
func ImageURL(path, size string) string {
	return buildImageURL(imageBaseURL, path, size)
}

func buildImageURL(baseURL, path, size string) string {
	if path == "" {
		return ""
	}
	if size == "" {
		size = SizeMedium
	}
	return baseURL + size + "/" + strings.TrimPrefix(path, "/")
}

// Fetcher はポスター画像の取得機能の実装。
// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
// 画像はあくまで装飾であり、取得失敗が呼び出し元の処理を止めることはない。
type Fetcher struct {
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64
	baseURL   string // テスト用に差し替え可能
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// timeoutが0以下、maxSizeが0以下の場合は既定値を使用する。
func NewFetcher(ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxSize int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		logger:    logger,
		timeout:   timeout,
		maxSize:   maxSize,
		baseURL:   imageBaseURL,
	}
}

// Fetch はポスターパスの画像を取得する。
// SSRF検証、HTTPステータス、サイズ上限、Content-Typeのいずれかに
// 問題がある場合はnilデータと空MIMEを返す。
func (f *Fetcher) Fetch(ctx context.Context, path, size string) (data []byte, mimeType string, err error) {
	imageURL := buildImageURL(f.baseURL, path, size)
	if imageURL == "" {
		return nil, "", nil
	}

	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(imageURL); err != nil {
			f.logger.Warn("ポスター取得: SSRFブロック",
				slog.String("url", imageURL),
				slog.String("error", err.Error()),
			)
			return nil, "", nil
		}
	}

	client := f.httpClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		f.logger.Warn("ポスター取得: リクエスト作成失敗",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Cinelog/1.0 Content Client")

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Warn("ポスター取得: HTTPリクエスト失敗",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		return nil, "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("ポスター取得: HTTPステータス異常",
			slog.String("url", imageURL),
			slog.Int("status", resp.StatusCode),
		)
		return nil, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		f.logger.Warn("ポスター取得: レスポンス読み取り失敗",
			slog.String("url", imageURL),
			slog.String("error", err.Error()),
		)
		return nil, "", nil
	}
	if int64(len(body)) > f.maxSize {
		f.logger.Warn("ポスター取得: サイズ超過",
			slog.String("url", imageURL),
			slog.Int("size", len(body)),
		)
		return nil, "", nil
	}

	mimeType = extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		f.logger.Warn("ポスター取得: 画像以外のContent-Type",
			slog.String("url", imageURL),
			slog.String("content_type", mimeType),
		)
		return nil, "", nil
	}

	return body, mimeType, nil
}

func (f *Fetcher) httpClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプ部分を取り出す。
func extractMimeType(contentType string) string {
	mime, _, found := strings.Cut(contentType, ";")
	if !found {
		mime = contentType
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// isImageMime は画像のメディアタイプかどうかを判定する。
func isImageMime(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
