// Package redirect は注目コンテンツへの時限リダイレクトを提供する。
// 注目投稿を1件取得し、カウントダウンの完了後にその詳細ビューへ遷移する。
// スコープ破棄時はカウントダウンを停止し、遷移は発生しない。
package redirect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cinelog/internal/model"
)

// State はコントローラーの状態を表す。
type State string

const (
	// StateIdle は開始前の初期状態。
	StateIdle State = "idle"
	// StateLoading は注目投稿の取得中。
	StateLoading State = "loading"
	// StateReady は取得成功後、カウントダウン開始前の一瞬の状態。
	StateReady State = "ready"
	// StateEmpty は取得結果が空だった終端状態。カウントダウンは行わない。
	StateEmpty State = "empty"
	// StateErrored は取得に失敗した終端状態。カウントダウンは行わない。
	StateErrored State = "errored"
	// StateCounting はカウントダウン進行中。
	StateCounting State = "counting"
	// StateNavigated は遷移が発火した終端状態。
	StateNavigated State = "navigated"
)

// DefaultCountdownSeconds はカウントダウンの既定秒数。
const DefaultCountdownSeconds = 3

// listingTarget は投稿にIDがない場合のフォールバック遷移先。
const listingTarget = "/posts"

// FeaturedSource は注目投稿の取得インターフェース。gateway.Clientが実装する。
type FeaturedSource interface {
	ListPosts(ctx context.Context, limit int) ([]model.Post, error)
}

// Controller は時限リダイレクトの状態機械。
// 遷移は Idle → Loading → {Ready → Counting → Navigated | Empty | Errored}。
type Controller struct {
	source    FeaturedSource
	navigate  func(target string)
	countdown int
	logger    *slog.Logger

	// テスト用に差し替え可能。1秒ごとのティックチャネルと停止関数を返す
	newTicker func() (<-chan time.Time, func())

	mu        sync.Mutex
	state     State
	remaining int
	post      *model.Post
	stopped   bool

	stop chan struct{}
	done chan struct{}
}

// NewController はControllerを生成する。navigateは遷移先パスを受け取る
// コールバックで、カウントダウン完了時に最大1回だけ呼ばれる。
// countdownSecondsが0以下の場合は既定値を使用する。
func NewController(source FeaturedSource, navigate func(target string), countdownSeconds int, logger *slog.Logger) *Controller {
	if countdownSeconds <= 0 {
		countdownSeconds = DefaultCountdownSeconds
	}
	return &Controller{
		source:    source,
		navigate:  navigate,
		countdown: countdownSeconds,
		logger:    logger,
		newTicker: func() (<-chan time.Time, func()) {
			t := time.NewTicker(time.Second)
			return t.C, t.Stop
		},
		state: StateIdle,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start は取得とカウントダウンを開始する。ブロックしない。
// 2回目以降の呼び出しは無視される。
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateLoading
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	posts, err := c.source.ListPosts(ctx, 1)

	c.mu.Lock()
	if c.stopped {
		// スコープ破棄後に完了したフェッチの結果は破棄する
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state = StateErrored
		c.mu.Unlock()
		c.logger.Warn("注目投稿の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(posts) == 0 {
		c.state = StateEmpty
		c.mu.Unlock()
		return
	}

	c.post = &posts[0]
	c.state = StateReady
	c.state = StateCounting
	c.remaining = c.countdown
	c.mu.Unlock()

	c.countDown(ctx)
}

// countDown は1秒ごとに残り秒数を減らし、0に達したら遷移を発火する。
func (c *Controller) countDown(ctx context.Context) {
	ticks, stopTicker := c.newTicker()
	defer stopTicker()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticks:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining > 0 {
				c.mu.Unlock()
				continue
			}
			c.state = StateNavigated
			target := c.target()
			c.mu.Unlock()

			c.logger.Info("注目投稿へリダイレクトします",
				slog.String("target", target),
			)
			c.navigate(target)
			return
		}
	}
}

// target は遷移先パスを決定する。投稿が識別可能なIDを持たない場合は
// 一覧ビューへフォールバックする。呼び出し元がロックを保持する。
func (c *Controller) target() string {
	if c.post == nil || c.post.ID == "" {
		return listingTarget
	}
	return listingTarget + "/" + c.post.ID
}

// Stop はコントローラーを破棄する。Counting中であればカウントダウンは
// 停止され、遷移は発生しない。複数回呼んでも安全。
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	close(c.stop)
}

// State は現在の状態を返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining はカウントダウンの残り秒数を返す。
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Post は取得済みの注目投稿を返す。未取得の場合はnil。
func (c *Controller) Post() *model.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.post
}

// Done は実行ゴルーチンの終了を通知するチャネルを返す。
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
