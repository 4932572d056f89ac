package webservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/powernet/internal/pkg/msg"
)

// Envelope is the JSON frame written to stream clients.
type Envelope struct {
	Topic   string      `json:"Topic"`
	Sender  uuid.UUID   `json:"Sender"`
	Payload interface{} `json:"Payload"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine messages out to every connected stream client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       *sync.Once
}

// NewHub returns a Hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		once:       &sync.Once{},
	}
}

// Run owns the client set until Stop.
func (h *Hub) Run() {
	log.Println("[Hub] Process Started")
loop:
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// slow client
					close(c.send)
					delete(h.clients, c)
				}
			}
		case <-h.done:
			break loop
		}
	}
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	log.Println("[Hub] Process Stopped")
}

// Stop terminates Run and drops every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast queues m for every client. Frames are dropped when the hub is
// backed up.
func (h *Hub) Broadcast(m msg.Msg) error {
	frame, err := json.Marshal(Envelope{m.Topic().String(), m.PID(), m.Payload()})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- frame:
	default:
	}
	return nil
}

// Forward broadcasts everything received on inbox until it closes.
func (h *Hub) Forward(inbox <-chan msg.Msg) {
	for m := range inbox {
		if err := h.Broadcast(m); err != nil {
			log.Println("[Hub] malformed JSON:", err)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and registers the connection.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Hub] upgrade:", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for the close; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
