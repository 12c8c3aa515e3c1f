// Package preview mirrors matrix frames to websocket clients so the
// controller can be watched without the LED hardware.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
)

// Frame is the message pushed to clients. RGB holds Width*Height*3 bytes
// in raster order and is base64 on the wire.
type Frame struct {
	ID  uint64 `json:"frame"`
	W   int    `json:"w"`
	H   int    `json:"h"`
	RGB []byte `json:"rgb"`
}

const writeWait = 200 * time.Millisecond

// Hub is a display.Drawer that broadcasts every frame it is given. Draw
// only records the frame; a background loop does the websocket writes.
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex // guards rgb, frameID and clients
	rgb     []byte
	frameID uint64
	clients map[*websocket.Conn]bool

	writeMu sync.Mutex // one writer per connection
	kick    chan struct{}
	stop    chan struct{}
	once    sync.Once

	srv *http.Server
}

func New(logger zerolog.Logger) *Hub {
	h := &Hub{
		logger:  logger.With().Str("module", "Preview").Logger(),
		rgb:     make([]byte, matrix.Size*3),
		clients: map[*websocket.Conn]bool{},
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go h.broadcaster()
	return h
}

func (h *Hub) String() string          { return "preview" }
func (h *Hub) Halt() error             { return nil }
func (h *Hub) ColorModel() color.Model { return color.NRGBAModel }
func (h *Hub) Bounds() image.Rectangle { return image.Rect(0, 0, matrix.Size, 1) }

func (h *Hub) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(h.Bounds())
	h.mu.Lock()
	for x := r.Min.X; x < r.Max.X; x++ {
		c := color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y)).(color.NRGBA)
		h.rgb[x*3+0] = c.R
		h.rgb[x*3+1] = c.G
		h.rgb[x*3+2] = c.B
	}
	h.frameID++
	h.mu.Unlock()

	select {
	case h.kick <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) frameLocked() Frame {
	return Frame{
		ID:  h.frameID,
		W:   matrix.Width,
		H:   matrix.Height,
		RGB: append([]byte(nil), h.rgb...),
	}
}

func (h *Hub) broadcaster() {
	for {
		select {
		case <-h.stop:
			return
		case <-h.kick:
			h.broadcast()
		}
	}
}

func (h *Hub) broadcast() {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	f := h.frameLocked()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg, err := json.Marshal(f)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal frame")
		return
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Str("client", c.RemoteAddr().String()).Msg("dropping client")
			h.drop(c)
		}
	}
}

// HandleFramesWS upgrades the request and streams frames until the client
// goes away. The current frame is sent right after the upgrade.
func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("upgrade")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	f := h.frameLocked()
	h.mu.Unlock()

	h.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(f)
	h.writeMu.Unlock()
	if err != nil {
		h.drop(conn)
		return
	}

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	body := map[string]any{
		"ok":      true,
		"frame":   h.frameID,
		"clients": len(h.clients),
	}
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleFramesWS)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}

// Start serves Handler on addr in the background.
func (h *Hub) Start(addr string) {
	h.srv = &http.Server{
		Addr:         addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		h.logger.Info().Str("addr", addr).Msg("preview server starting")
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("preview server")
		}
	}()
}

// Shutdown stops the broadcast loop and the server started by Start, and
// disconnects clients.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.once.Do(func() { close(h.stop) })
	var err error
	if h.srv != nil {
		err = h.srv.Shutdown(ctx)
	}
	h.mu.Lock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	return err
}
