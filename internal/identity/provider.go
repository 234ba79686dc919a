package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	defaultTokenURL  = "https://securetoken.googleapis.com/v1/token"
	defaultLookupURL = "https://identitytoolkit.googleapis.com/v1/accounts:lookup"
)

// ProviderConfig はIDプロバイダークライアントの設定。
type ProviderConfig struct {
	APIKey string

	// テスト用にオーバーライド可能なURL
	TokenURL  string
	LookupURL string
}

// Provider は外部IDプロバイダーのRESTクライアント。
// 長命のリフレッシュ資格情報を短命のIDトークン（証明トークン）に交換する。
// トークンの中身は検証も解釈もせず、そのまま転送する。
type Provider struct {
	config     ProviderConfig
	httpClient *http.Client
	watcher    *Watcher
	logger     *slog.Logger

	mu           sync.Mutex
	refreshToken string
}

// NewProvider はProviderを生成する。
// セッションの変更はwatcherを通じて発行される。
func NewProvider(config ProviderConfig, httpClient *http.Client, watcher *Watcher, logger *slog.Logger) *Provider {
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.LookupURL == "" {
		config.LookupURL = defaultLookupURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{
		config:     config,
		httpClient: httpClient,
		watcher:    watcher,
		logger:     logger,
	}
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    string `json:"expires_in"`
}

// lookupResponse はアカウント参照エンドポイントのレスポンス。
type lookupResponse struct {
	Users []struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
	} `json:"users"`
}

// SignIn はリフレッシュ資格情報でサインインし、新しいSessionを発行する。
// 1. 資格情報を証明トークンに交換して有効性を確認する
// 2. アカウント参照でメールアドレスとUIDを取得する
// 3. Sessionをwatcherへ発行する
func (p *Provider) SignIn(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	p.mu.Lock()
	p.refreshToken = refreshToken
	p.mu.Unlock()

	idToken, uid, err := p.exchange(ctx, refreshToken)
	if err != nil {
		p.mu.Lock()
		p.refreshToken = ""
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to exchange refresh token: %w", err)
	}

	email, lookupUID, err := p.lookup(ctx, idToken)
	if err != nil {
		// メールアドレスは表示用のため、参照失敗はサインイン自体を妨げない
		p.logger.Warn("アカウント参照に失敗しました", slog.String("error", err.Error()))
	}
	if lookupUID != "" {
		uid = lookupUID
	}

	session := NewSession(email, uid, p)
	p.watcher.Set(session)

	p.logger.Info("サインインしました",
		slog.String("uid", uid),
		slog.String("email", email),
	)
	return session, nil
}

// SignOut は現在のセッションを破棄し、セッション不在をwatcherへ発行する。
func (p *Provider) SignOut() {
	p.mu.Lock()
	p.refreshToken = ""
	p.mu.Unlock()

	p.watcher.Set(nil)
	p.logger.Info("サインアウトしました")
}

// ProofToken は保持中のリフレッシュ資格情報から新しい証明トークンを取得する。
// トークンは短命のため呼び出しごとに新規取得し、キャッシュしない。
// 取得失敗はセッションを無効化しない（呼び出し元にエラーを返すのみ）。
func (p *Provider) ProofToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	refreshToken := p.refreshToken
	p.mu.Unlock()

	if refreshToken == "" {
		return "", fmt.Errorf("no refresh credential held")
	}

	idToken, _, err := p.exchange(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to fetch proof token: %w", err)
	}
	return idToken, nil
}

// exchange はリフレッシュ資格情報を証明トークンに交換する。
func (p *Provider) exchange(ctx context.Context, refreshToken string) (idToken, uid string, err error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	endpoint := p.config.TokenURL + "?key=" + url.QueryEscape(p.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.IDToken == "" {
		return "", "", fmt.Errorf("empty id token in response")
	}

	return tokenResp.IDToken, tokenResp.UserID, nil
}

// lookup は証明トークンでアカウント情報（メールアドレス、UID）を参照する。
func (p *Provider) lookup(ctx context.Context, idToken string) (email, uid string, err error) {
	payload, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode lookup request: %w", err)
	}

	endpoint := p.config.LookupURL + "?key=" + url.QueryEscape(p.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return "", "", fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read lookup response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var lookupResp lookupResponse
	if err := json.Unmarshal(body, &lookupResp); err != nil {
		return "", "", fmt.Errorf("failed to parse lookup response: %w", err)
	}
	if len(lookupResp.Users) == 0 {
		return "", "", fmt.Errorf("no user in lookup response")
	}

	return lookupResp.Users[0].Email, lookupResp.Users[0].LocalID, nil
}

// compile-time interface check
var _ TokenSource = (*Provider)(nil)
