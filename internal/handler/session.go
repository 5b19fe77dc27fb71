package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hitoshi/albumview/internal/browse"
	"github.com/hitoshi/albumview/internal/middleware"
	"github.com/hitoshi/albumview/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// clientMessage はクライアントから受信する遷移要求。
//
//	{"type":"navigate","view":"items","id":3}
//	{"type":"back"}
type clientMessage struct {
	Type string `json:"type"`
	View string `json:"view"`
	ID   int    `json:"id"`
}

// serverMessage はクライアントへ送信する描画指示。typeは "view" または "error"。
type serverMessage struct {
	Type       string                        `json:"type"`
	View       model.View                    `json:"view,omitempty"`
	ID         int                           `json:"id,omitempty"`
	Generation uint64                        `json:"generation"`
	Data       any                           `json:"data,omitempty"`
	Status     int                           `json:"status,omitempty"`
	Error      *middleware.ErrorResponseBody `json:"error,omitempty"`
}

// SessionHandler はWebSocket接続ごとに1つのNavigatorを持つ閲覧セッションを提供する。
// 遷移要求は受信順に並行実行し、最新の要求の結果だけをクライアントへ送る。
type SessionHandler struct {
	entries  browse.Entries
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// closingがキャンセルされると全セッションを閉じる。nilなら接続が切れるまで続く。
	closing context.Context
}

// NewSessionHandler はSessionHandlerを生成する。
// Originヘッダーが付いたハンドシェイクはallowedOriginと一致する場合のみ受け付ける。
func NewSessionHandler(entries browse.Entries, allowedOrigin string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		entries: entries,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeHTTP はWebSocketへアップグレードし、接続が閉じるまでセッションを実行する。
// GET /ws
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgraderがエラーレスポンスを書き込み済み
		h.logger.Warn("WebSocketへのアップグレードに失敗しました",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	logger := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("session_id", uuid.NewString()),
	)
	s := &navigationSession{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		requestID: requestID,
		logger:    logger,
	}
	s.navigator = browse.NewNavigator(h.entries, s, logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.closing != nil {
		stop := context.AfterFunc(h.closing, cancel)
		defer stop()
	}

	logger.Info("閲覧セッションを開始しました")
	s.run(ctx)
	logger.Info("閲覧セッションを終了しました")
}

// navigationSession は1接続分の閲覧セッション。browse.Rendererを実装する。
type navigationSession struct {
	conn      *websocket.Conn
	navigator *browse.Navigator
	send      chan []byte
	requestID string
	logger    *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

func (s *navigationSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.ctx = ctx

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump(ctx)
	}()

	s.start(func(ctx context.Context) error {
		return s.navigator.Navigate(ctx, browse.Target{View: model.ViewAccountList})
	})

	s.readPump()

	cancel()
	s.wg.Wait()
	<-writeDone
}

// readPump は接続が閉じるまでクライアントのメッセージを読み、遷移を開始する。
func (s *navigationSession) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("WebSocketの読み込みに失敗しました", slog.String("error", err.Error()))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendAPIError(browse.Target{}, http.StatusBadRequest, model.NewInvalidMessageError())
			continue
		}

		switch msg.Type {
		case "navigate":
			target, err := browse.ParseTarget(msg.View, msg.ID)
			if err != nil {
				s.RenderError(s.navigator.Generation(), browse.Target{View: model.View(msg.View), ID: msg.ID}, err)
				continue
			}
			s.start(func(ctx context.Context) error { return s.navigator.Navigate(ctx, target) })
		case "back":
			s.start(func(ctx context.Context) error { return s.navigator.Back(ctx) })
		default:
			s.sendAPIError(browse.Target{}, http.StatusBadRequest, model.NewInvalidMessageError())
		}
	}
}

// writePump は送信キューの内容とpingを接続へ書き込む。接続への書き込みはこのゴルーチンだけが行う。
func (s *navigationSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// start は遷移をバックグラウンドで実行する。
// 追い越された遷移と、Navigatorが描画済みのエラーは何も送らない。
func (s *navigationSession) start(navigate func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := navigate(s.ctx)
		switch {
		case err == nil:
		case errors.Is(err, browse.ErrSuperseded):
			s.logger.Debug("遷移結果を破棄しました")
		case errors.Is(err, browse.ErrNoBack):
			s.sendAPIError(s.navigator.Current(), http.StatusBadRequest, model.NewNoBackError())
		default:
			s.logger.Warn("遷移に失敗しました", slog.String("error", err.Error()))
		}
	}()
}

// RenderAccountList はアカウント一覧画面を送信する。
func (s *navigationSession) RenderAccountList(generation uint64, vm *model.AccountListVM) error {
	return s.enqueue(serverMessage{Type: "view", View: model.ViewAccountList, Generation: generation, Data: vm})
}

// RenderCollectionList はコレクション一覧画面を送信する。
func (s *navigationSession) RenderCollectionList(generation uint64, vm *model.CollectionListVM) error {
	return s.enqueue(serverMessage{Type: "view", View: model.ViewCollectionList, ID: vm.AccountID, Generation: generation, Data: vm})
}

// RenderItemList はアイテム一覧画面を送信する。
func (s *navigationSession) RenderItemList(generation uint64, vm *model.ItemListVM) error {
	return s.enqueue(serverMessage{Type: "view", View: model.ViewItemList, ID: vm.CollectionID, Generation: generation, Data: vm})
}

// RenderItemDetail はアイテム詳細画面を送信する。
func (s *navigationSession) RenderItemDetail(generation uint64, vm *model.ItemDetailVM) error {
	return s.enqueue(serverMessage{Type: "view", View: model.ViewItemDetail, ID: vm.ID, Generation: generation, Data: vm})
}

// RenderError は遷移の失敗をHTTPと同じ統一エラーフォーマットで送信する。
func (s *navigationSession) RenderError(generation uint64, target browse.Target, err error) error {
	status, apiErr := resolveError(err, resourceFor(target.View), target.ID)
	if apiErr == nil {
		apiErr = &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	return s.enqueue(s.errorMessage(generation, target, status, apiErr))
}

func (s *navigationSession) sendAPIError(target browse.Target, status int, apiErr *model.APIError) {
	if err := s.enqueue(s.errorMessage(s.navigator.Generation(), target, status, apiErr)); err != nil {
		s.logger.Debug("エラーメッセージを送信できませんでした", slog.String("error", err.Error()))
	}
}

func (s *navigationSession) errorMessage(generation uint64, target browse.Target, status int, apiErr *model.APIError) serverMessage {
	return serverMessage{
		Type:       "error",
		View:       target.View,
		ID:         target.ID,
		Generation: generation,
		Status:     status,
		Error: &middleware.ErrorResponseBody{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Category:  apiErr.Category,
			Action:    apiErr.Action,
			RequestID: s.requestID,
		},
	}
}

// enqueue はメッセージを送信キューに積む。セッション終了後はエラーを返す。
func (s *navigationSession) enqueue(msg serverMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// resourceFor は画面種別から404時に表示するリソース名を返す。
func resourceFor(view model.View) string {
	switch view {
	case model.ViewItemList:
		return "アルバム"
	case model.ViewItemDetail:
		return "写真"
	default:
		return "ユーザー"
	}
}
