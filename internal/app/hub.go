// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

const (
	writeTimeout = 5 * time.Second
	outboxSize   = 16
)

// upgrader keeps gorilla's default origin check: a browser page may only
// open the socket from the viewer's own host.
var upgrader = websocket.Upgrader{}

// WSMessage is an operator action sent by the browser.
type WSMessage struct {
	Action string `json:"action"` // connect, set_integration_time, set_scans_to_average, start, stop, export, status
	Value  string `json:"value,omitempty"`
	Path   string `json:"path,omitempty"`
}

// WSResponse is everything the server pushes to the browser.
type WSResponse struct {
	Type     string             `json:"type"` // result, error, status, spectrum
	Result   *capture.Result    `json:"result,omitempty"`
	Spectrum *spectrum.Spectrum `json:"spectrum,omitempty"`
	Message  string             `json:"message,omitempty"`
}

type wsClient struct {
	conn    *websocket.Conn
	spectra *capture.Mailbox[*spectrum.Spectrum]
	out     chan WSResponse
	done    chan struct{} // reader finished
	dead    chan struct{} // writer finished
}

// Hub fans spectra and status lines out to every connected browser. Spectra
// are latest-wins per client: a slow browser skips frames, it never slows
// the scheduler down.
type Hub struct {
	ctx  context.Context
	ctrl Controller

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub executing commands through ctrl. Commands still
// waiting when ctx is cancelled are abandoned.
func NewHub(ctx context.Context, ctrl Controller) *Hub {
	return &Hub{
		ctx:     ctx,
		ctrl:    ctrl,
		clients: make(map[*wsClient]struct{}),
	}
}

// Render implements capture.RenderSink.
func (h *Hub) Render(s *spectrum.Spectrum) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.spectra.Put(s)
	}
}

// BroadcastStatus queues a status line for every client, dropping it for
// clients whose outbox is full.
func (h *Hub) BroadcastStatus(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- WSResponse{Type: "status", Message: status}:
		default:
			log.Printf("ws: client outbox full, status dropped")
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// ServeWS handles one browser connection: it executes incoming actions and
// streams results, status lines and spectra back.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{
		conn:    conn,
		spectra: capture.NewMailbox[*spectrum.Spectrum](),
		out:     make(chan WSResponse, outboxSize),
		done:    make(chan struct{}),
		dead:    make(chan struct{}),
	}
	h.add(c)
	defer h.remove(c)

	go func() {
		defer close(c.dead)
		c.writeLoop()
	}()
	defer func() {
		close(c.done)
		<-c.dead
	}()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	// Initial snapshot
	h.execute(ctx, c, capture.Command{Action: capture.ActionStatus})
	if latest := h.ctrl.Latest(); latest != nil {
		c.spectra.Put(latest)
	}

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		h.execute(ctx, c, capture.Command{
			Action: capture.Action(msg.Action),
			Value:  msg.Value,
			Path:   msg.Path,
		})
	}
}

func (h *Hub) execute(ctx context.Context, c *wsClient, cmd capture.Command) {
	res, err := h.ctrl.Do(ctx, cmd)
	resp := WSResponse{Type: "result", Result: &res}
	if err != nil {
		resp.Type = "error"
		resp.Message = err.Error()
	}

	select {
	case c.out <- resp:
	case <-c.dead:
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("ws: client connected (%d total)", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("ws: client disconnected (%d total)", n)
}

// writeLoop is the only writer on the connection. On a write error it
// closes the connection so the reader stops too.
func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case resp := <-c.out:
			if !c.write(resp) {
				return
			}
		case <-c.spectra.Ready():
			s, ok := c.spectra.Take()
			if !ok {
				continue
			}
			if !c.write(WSResponse{Type: "spectrum", Spectrum: s}) {
				return
			}
		}
	}
}

func (c *wsClient) write(resp WSResponse) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(resp); err != nil {
		log.Printf("ws: write error: %v", err)
		return false
	}
	return true
}
