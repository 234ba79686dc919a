// Package gateway はコンテンツサービスへの認証付きHTTPゲートウェイを提供する。
// 読み取り系はセッション不要、変更系はセッション必須で証明トークンを
// Bearerヘッダーとして添付する。リトライは一切行わない（変更系は
// ID未確定の状態では冪等でないため、再試行の判断は呼び出し元に委ねる）。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/cinelog/internal/identity"
	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/security"
)

// userAgent は外部サービスへのリクエストに付与するUser-Agentヘッダー。
const userAgent = "Cinelog/1.0 Content Client"

// SessionSource は現在のセッションの参照インターフェース。
// identity.Watcherが実装する。
type SessionSource interface {
	// Current は現在のセッションを返す。不在時はnil。
	Current() *identity.Session
}

// Client はコンテンツサービスAPIのクライアント。
// 全エンドポイントの呼び出しと、エラー分類（Unauthorized / Rejected /
// Unreachable）への変換を担う。
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   SessionSource
	sanitizer  security.ContentSanitizerService
	limiter    *rate.Limiter
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしのサービスルートURL。
func NewClient(
	baseURL string,
	httpClient *http.Client,
	sessions SessionSource,
	sanitizer security.ContentSanitizerService,
	limiter *rate.Limiter,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Client {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		sessions:   sessions,
		sanitizer:  sanitizer,
		limiter:    limiter,
		metrics:    recorder,
		logger:     logger,
	}
}

// serverError はサービスがエラー応答時に返すボディの形式。
// errorとmessageのどちらのフィールドも使われるため両方を受ける。
type serverError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// getJSON は認証不要のGETリクエストを実行し、レスポンスをoutにデコードする。
func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	return c.doJSON(ctx, operation, http.MethodGet, path, "", nil, out)
}

// authedGetJSON はBearerトークン必須のGETリクエストを実行する。
// セッション不在時はネットワークI/Oを行わずUnauthorizedで失敗する。
func (c *Client) authedGetJSON(ctx context.Context, operation, path string, out any) error {
	token, err := c.proofToken(ctx)
	if err != nil {
		c.metrics.RecordRequestFailure(operation, failureCode(err))
		return err
	}
	return c.doJSON(ctx, operation, http.MethodGet, path, token, nil, out)
}

// mutateJSON は変更系リクエストを実行する。セッション不在時は
// ネットワークI/Oを行わずUnauthorizedで失敗する。それ以外の場合は
// 呼び出しごとに新しい証明トークンを取得してBearerヘッダーに添付する。
// outがnilの場合はレスポンスボディをデコードしない。
func (c *Client) mutateJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	token, err := c.proofToken(ctx)
	if err != nil {
		c.metrics.RecordRequestFailure(operation, failureCode(err))
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.doJSON(ctx, operation, method, path, token, body, out)
}

// proofToken は現在のセッションから証明トークンを新規取得する。
// トークンは短命のためキャッシュせず、毎回取得する。
// セッションは存在するがトークン取得に失敗した場合はUnreachableとなる
// （認証済みの利用者をサインアウト扱いにしないため）。
func (c *Client) proofToken(ctx context.Context) (string, error) {
	session := c.sessions.Current()
	if !session.Present() {
		return "", model.NewUnauthorizedError()
	}
	token, err := session.ProofToken(ctx)
	if err != nil {
		c.logger.Warn("証明トークンの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return "", model.NewUnreachableError("証明トークンの取得に失敗しました: " + err.Error())
	}
	return token, nil
}

// failureCode はエラーからメトリクス用の失敗コードを取り出す。
func failureCode(err error) string {
	var ce *model.ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return model.ErrCodeUnreachable
}

// doJSON はHTTPリクエストを1回だけ実行し、結果をエラー分類に従って変換する。
// 応答が得られない場合はUnreachable、4xx/5xxはRejected{status, serverMessage}、
// 成功ボディのデコード失敗はUnreachableとなる。
func (c *Client) doJSON(ctx context.Context, operation, method, path, token string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.RecordRequestFailure(operation, model.ErrCodeUnreachable)
			return model.NewUnreachableError(err.Error())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordRequestLatency(operation, time.Since(start))
	if err != nil {
		c.logger.Error("コンテンツサービスへのリクエストに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordRequestFailure(operation, model.ErrCodeUnreachable)
		return model.NewUnreachableError(err.Error())
	}
	defer resp.Body.Close()

	c.metrics.RecordRequest(operation, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		message := readServerMessage(resp.Body)
		c.logger.Warn("コンテンツサービスがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
			slog.String("server_message", message),
		)
		c.metrics.RecordRequestFailure(operation, model.ErrCodeRejected)
		return model.NewRejectedError(resp.StatusCode, message)
	}

	if out == nil {
		// 削除系は成功ボディを読み捨てる
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRequestFailure(operation, model.ErrCodeUnreachable)
		return model.NewUnreachableError("レスポンスボディの読み取りに失敗しました: " + err.Error())
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("コンテンツサービスのレスポンスのパースに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordRequestFailure(operation, model.ErrCodeUnreachable)
		return model.NewUnreachableError("レスポンスJSONのパースに失敗しました: " + err.Error())
	}
	return nil
}

// readServerMessage はエラー応答ボディからサーバーメッセージを抽出する。
// JSONでない場合や抽出できない場合は空文字を返す。
func readServerMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return ""
	}
	var se serverError
	if err := json.Unmarshal(data, &se); err != nil {
		return ""
	}
	if se.Error != "" {
		return se.Error
	}
	return se.Message
}

// sanitizePost は投稿の本文フィールドをサニタイズする。
// デコード境界で一度だけ適用され、以降のレイヤーは安全なHTMLのみを扱う。
func (c *Client) sanitizePost(p *model.Post) {
	if c.sanitizer == nil {
		return
	}
	if p.Body != "" {
		p.Body = c.sanitizer.Sanitize(p.Body)
	}
	if p.Content != "" {
		p.Content = c.sanitizer.Sanitize(p.Content)
	}
}
