package identity

import "sync"

// Watcher はプロバイダーのセッション変更通知を単一の現在値として再発行する。
// プロバイダーへの購読はWatcher 1つにつき1本のみで、複数のコンポーネントが
// 個別にプロバイダーを購読することによる冗長な通信を避ける。
// コンポーネントはCurrentで同期的に現在値を読むか、Subscribeで変更通知を受ける。
type Watcher struct {
	mu      sync.RWMutex
	current *Session
	subs    map[int]func(*Session)
	nextID  int
}

// NewWatcher はWatcherを生成する。初期状態はセッション不在。
func NewWatcher() *Watcher {
	return &Watcher{
		subs: make(map[int]func(*Session)),
	}
}

// Current は最新のセッション値を返す。セッション不在の場合はnil。
func (w *Watcher) Current() *Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Set は新しいセッション値をアトミックに発行し、全購読者へ通知する。
// 部分的に更新されたセッションが観測されることはない。
func (w *Watcher) Set(s *Session) {
	w.mu.Lock()
	w.current = s
	// 通知中の購読解除とデッドロックしないよう、ロック外で呼び出す
	fns := make([]func(*Session), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe はセッション変更の通知を購読する。
// 戻り値のcancelを呼ぶと購読を解除する。スコープの破棄時に必ず呼ぶこと。
func (w *Watcher) Subscribe(fn func(*Session)) (cancel func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}
