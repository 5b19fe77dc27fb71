// Package transporttest は上流APIを置き換えるインメモリのGetterを提供する。
package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hitoshi/albumview/internal/model"
)

// Fake はパスごとに登録された値をJSONとして返すGetter。
// 未登録のパスには404のTransportErrorを返す。並行呼び出しに対して安全。
type Fake struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	failures map[string]error
	calls    map[string]int
	hook     func(ctx context.Context, path string)
}

// New はFakeの新しいインスタンスを生成する。
func New() *Fake {
	return &Fake{
		bodies:   make(map[string][]byte),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Set はpathに対するレスポンスとしてvをJSONエンコードして登録する。
func (f *Fake) Set(path string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("transporttest: marshal %s: %v", path, err))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = b
	delete(f.failures, path)
}

// Fail はpathへのリクエストを指定ステータスのTransportErrorで失敗させる。
func (f *Fake) Fail(path string, statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = &model.TransportError{
		Path:       path,
		StatusCode: statusCode,
		Err:        fmt.Errorf("status %d", statusCode),
	}
}

// OnGet はGetの度にレスポンス返却前に呼ばれるフックを設定する。
// 完了順序の操作やブロックに使用する。
func (f *Fake) OnGet(hook func(ctx context.Context, path string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Calls はpathへのGet呼び出し回数を返す。
func (f *Fake) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls は全パスへのGet呼び出し回数の合計を返す。
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Get はtransport.Getterを実装する。
func (f *Fake) Get(ctx context.Context, path string, out any) error {
	f.mu.Lock()
	f.calls[path]++
	hook := f.hook
	body, ok := f.bodies[path]
	failure := f.failures[path]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return &model.TransportError{Path: path, Err: err}
	}
	if failure != nil {
		return failure
	}
	if !ok {
		return &model.TransportError{Path: path, StatusCode: http.StatusNotFound, Err: fmt.Errorf("not found")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &model.TransportError{Path: path, Err: err}
	}
	return nil
}
