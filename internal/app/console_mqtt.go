package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/location_recorder/internal/config"
	"github.com/relabs-tech/location_recorder/internal/gps"
	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// RunConsoleMQTT prints fixes, headings and recorder status as they are
// published, until Ctrl+C.
func RunConsoleMQTT(cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	subs := []struct {
		topic  string
		format func([]byte) (string, error)
	}{
		{cfg.TopicGPS, formatFixPayload},
		{cfg.TopicHeading, formatHeadingPayload},
		{cfg.TopicStatus, formatStatusPayload},
	}

	for _, sub := range subs {
		token := client.Subscribe(sub.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := sub.format(msg.Payload())
			if err != nil {
				log.Printf("console: %s unmarshal error: %v", msg.Topic(), err)
				return
			}
			fmt.Println(line)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", sub.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatFixPayload(payload []byte) (string, error) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"[GPS ]  time=%s lat=%.6f lon=%.6f alt=%.1fm hacc=%.1fm vacc=%.1fm speed=%.2fm/s course=%.1f° validity=%s",
		f.Time, f.Latitude, f.Longitude, f.Altitude, f.HorizontalAccuracy, f.VerticalAccuracy,
		f.Speed, f.CourseDeg, f.Validity,
	), nil
}

func formatHeadingPayload(payload []byte) (string, error) {
	var h gps.Heading
	if err := json.Unmarshal(payload, &h); err != nil {
		return "", err
	}
	reliable := "ok"
	if !h.Reliable() {
		reliable = "unreliable"
	}
	return fmt.Sprintf("[HDG ]  magnetic=%.1f° acc=%.1f° (%s)", h.MagneticHeading, h.Accuracy, reliable), nil
}

func formatStatusPayload(payload []byte) (string, error) {
	var st recorder.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return "", err
	}
	line := fmt.Sprintf("[REC ]  session=%s samples=%d pending=%d queued=%d flushes=%d failed=%d",
		st.SessionID, st.Samples, st.Pending, st.Queued, st.Flushes, st.FailedFlushes)
	if st.LastError != "" {
		line += " error=" + st.LastError
	}
	if st.Stopped {
		line += " (stopped)"
	}
	return line, nil
}
