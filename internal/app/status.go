package app

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// statusHub fans recorder status out to websocket clients. Each client has
// its own writer goroutine so a slow browser never stalls the sampler.
type statusHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan recorder.Status
	once sync.Once
}

func newStatusHub() *statusHub {
	return &statusHub{clients: make(map[*wsClient]struct{})}
}

// add registers conn and starts its writer. initial is sent first.
func (h *statusHub) add(conn *websocket.Conn, initial recorder.Status) *wsClient {
	c := &wsClient{conn: conn, send: make(chan recorder.Status, 8)}
	c.send <- initial

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.stop()
		return c
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	return c
}

func (h *statusHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *statusHub) broadcast(st recorder.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- st:
		default:
			// client is behind; it gets the next one
		}
	}
}

func (h *statusHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *statusHub) close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
}

func (c *wsClient) stop() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (c *wsClient) writeLoop() {
	for st := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.conn.WriteJSON(st); err != nil {
			log.Printf("web: websocket write error: %v", err)
			c.conn.Close()
			return
		}
	}
}

// statusPublisher publishes recorder status as a retained MQTT message.
type statusPublisher struct {
	client mqtt.Client
	topic  string
}

func newStatusPublisher(broker, clientID, topic string) (*statusPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID + "-status")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Printf("recorder: publishing status to %s on %s", topic, broker)
	return &statusPublisher{client: client, topic: topic}, nil
}

func (p *statusPublisher) publish(st recorder.Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		log.Printf("recorder: status marshal error: %v", err)
		return
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	// don't hold the sampler for a slow broker
	if token.WaitTimeout(50*time.Millisecond) && token.Error() != nil {
		log.Printf("recorder: MQTT publish error (status): %v", token.Error())
	}
}

func (p *statusPublisher) close() {
	p.client.Disconnect(250)
}
