package model

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError は上流APIへのリクエスト失敗を表す。
// ネットワークエラー、2xx以外のステータス、レスポンスのデコード失敗を含む。
// StatusCodeはレスポンスを受信できなかった場合は0となる。
type TransportError struct {
	Path       string
	StatusCode int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: GET %s: status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("transport: GET %s: %v", e.Path, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError はエラーチェーンにTransportErrorが含まれるかを返す。
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound は上流APIが404を返したことによるエラーかを判定する。
func IsNotFound(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusNotFound
	}
	return false
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidID      = "INVALID_ID"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUpstreamFailed = "UPSTREAM_FAILED"
	ErrCodeUnknownView    = "UNKNOWN_VIEW"
	ErrCodeNoBack         = "NO_BACK"
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
)

// NewInvalidIDError は不正なID指定エラーを生成する。
func NewInvalidIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効なIDです: %s", raw),
		Category: "validation",
		Action:   "IDには正の整数を指定してください。",
	}
}

// NewNotFoundError は指定リソースが上流に存在しない場合のエラーを生成する。
func NewNotFoundError(resource string, id int) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %d", resource, id),
		Category: "validation",
		Action:   "一覧画面から選択し直してください。",
	}
}

// NewUpstreamFailedError は上流APIの呼び出し失敗エラーを生成する。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "データの取得に失敗しました。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnknownViewError は未知の画面種別が指定された場合のエラーを生成する。
func NewUnknownViewError(view string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownView,
		Message:  fmt.Sprintf("未知の画面です: %s", view),
		Category: "validation",
		Action:   "accounts、collections、items、item のいずれかを指定してください。",
	}
}

// NewNoBackError は戻り先のない画面で戻る操作が行われた場合のエラーを生成する。
func NewNoBackError() *APIError {
	return &APIError{
		Code:     ErrCodeNoBack,
		Message:  "これ以上戻れません。",
		Category: "validation",
		Action:   "一覧画面から選択してください。",
	}
}

// NewInvalidMessageError はWebSocketで解釈できないメッセージを受信した場合のエラーを生成する。
func NewInvalidMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessage,
		Message:  "メッセージを解釈できません。",
		Category: "validation",
		Action:   `{"type":"navigate","view":"...","id":...} または {"type":"back"} を送信してください。`,
	}
}
