package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

// MQTTSource follows the fixes and headings published by gps_producer.
type MQTTSource struct {
	opts         *mqtt.ClientOptions
	broker       string
	topicFix     string
	topicHeading string

	client   mqtt.Client
	headings chan gps.Heading

	mu          sync.RWMutex
	fix         gps.Fix
	haveFix     bool
	heading     gps.Heading
	haveHeading bool
}

// NewMQTTSource prepares a subscriber; nothing connects until Start.
func NewMQTTSource(broker, clientID, topicFix, topicHeading string) *MQTTSource {
	return &MQTTSource{
		opts: mqtt.NewClientOptions().
			AddBroker(broker).
			SetClientID(clientID).
			SetAutoReconnect(true),
		broker:       broker,
		topicFix:     topicFix,
		topicHeading: topicHeading,
		headings:     make(chan gps.Heading, headingBuffer),
	}
}

func (s *MQTTSource) Fix() (gps.Fix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix, s.haveFix
}

func (s *MQTTSource) Heading() (gps.Heading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heading, s.haveHeading
}

func (s *MQTTSource) Headings() <-chan gps.Heading { return s.headings }

// Start connects and subscribes to both topics.
func (s *MQTTSource) Start(ctx context.Context) error {
	s.client = mqtt.NewClient(s.opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Printf("location: connected to MQTT broker at %s", s.broker)

	subs := map[string]func([]byte){
		s.topicFix:     s.handleFix,
		s.topicHeading: s.handleHeading,
	}
	for topic, handle := range subs {
		token := s.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			handle(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			s.client.Disconnect(250)
			return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
		}
		log.Printf("location: subscribed to %s", topic)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

func (s *MQTTSource) handleFix(payload []byte) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("location: fix unmarshal error: %v", err)
		return
	}
	s.mu.Lock()
	s.fix = f
	s.haveFix = true
	s.mu.Unlock()
}

func (s *MQTTSource) handleHeading(payload []byte) {
	var h gps.Heading
	if err := json.Unmarshal(payload, &h); err != nil {
		log.Printf("location: heading unmarshal error: %v", err)
		return
	}
	s.mu.Lock()
	s.heading = h
	s.haveHeading = true
	s.mu.Unlock()

	if !offer(s.headings, h) {
		log.Printf("location: heading dropped, reader is behind")
	}
}
