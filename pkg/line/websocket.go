package line

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketConn is a byte stream over a websocket. Incoming text and binary
// messages are concatenated, writes go out as one binary message each.
type WebsocketConn struct {
	conn *websocket.Conn
	r    io.Reader
	wmu  sync.Mutex
}

func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{conn: conn}
}

func (wc *WebsocketConn) Read(p []byte) (int, error) {
	for {
		if wc.r == nil {
			_, r, err := wc.conn.NextReader()
			if err != nil {
				return 0, err
			}
			wc.r = r
		}
		n, err := wc.r.Read(p)
		if err == io.EOF {
			wc.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (wc *WebsocketConn) Write(p []byte) (int, error) {
	wc.wmu.Lock()
	defer wc.wmu.Unlock()
	if err := wc.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (wc *WebsocketConn) Close() error {
	wc.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = wc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	wc.wmu.Unlock()
	return wc.conn.Close()
}

// SessionFunc serves one connected client until the stream fails or ctx is
// done.
type SessionFunc func(ctx context.Context, s *Stream) error

// WebsocketServer hands each websocket client to a SessionFunc. Only one
// client is served at a time, others are turned away with 409 Conflict.
type WebsocketServer struct {
	ctx      context.Context
	serve    SessionFunc
	upgrader websocket.Upgrader
	busy     atomic.Bool
}

func NewWebsocketServer(ctx context.Context, serve SessionFunc) *WebsocketServer {
	return &WebsocketServer{
		ctx:   ctx,
		serve: serve,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (ws *WebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ws.busy.CompareAndSwap(false, true) {
		http.Error(w, "a session is already active", http.StatusConflict)
		return
	}
	defer ws.busy.Store(false)

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	stream := NewStream(NewWebsocketConn(conn))
	defer stream.Close()

	log.Printf("[ws] client connected from %s", r.RemoteAddr)
	if err := ws.serve(ws.ctx, stream); err != nil {
		log.Printf("[ws] session ended: %v", err)
		return
	}
	log.Printf("[ws] client disconnected")
}

// ListenAndServe serves websocket sessions on addr under /ws until ctx is
// done.
func ListenAndServe(ctx context.Context, addr string, serve SessionFunc) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWebsocketServer(ctx, serve))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[ws] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
