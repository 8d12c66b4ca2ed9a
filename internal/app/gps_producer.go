package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/location_recorder/internal/config"
	"github.com/relabs-tech/location_recorder/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes fixes to TOPIC_GPS and magnetic headings to TOPIC_HEADING.
func RunGPSProducer(cfg *config.Config) error {
	// ---- 1) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDGPS)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Open GPS serial port ----
	port, err := openGPSPort(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	publish := func(topic string, retained bool, payload []byte) error {
		token := client.Publish(topic, 0, retained, payload)
		token.Wait()
		return token.Error()
	}

	a := gps.NewAssembler(cfg.NMEAUEREMeters, cfg.HeadingAccuracyDeg)
	return forwardNMEA(port, a, cfg.TopicGPS, cfg.TopicHeading, publish)
}

// forwardNMEA feeds every line of r into a and publishes what changed:
// the whole fix (retained) after fix sentences, the reading after HDG.
func forwardNMEA(r io.Reader, a *gps.Assembler, topicFix, topicHeading string,
	publish func(topic string, retained bool, payload []byte) error) error {
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			forwardLine(line, a, topicFix, topicHeading, publish)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("GPS read error: %v", err)
			return err
		}
	}
}

func forwardLine(line string, a *gps.Assembler, topicFix, topicHeading string,
	publish func(topic string, retained bool, payload []byte) error) {
	upd, err := a.Feed(line)
	if err != nil {
		// noisy GPS or partial sentences
		return
	}

	var (
		topic    string
		retained bool
		v        any
	)
	switch upd {
	case gps.UpdateFix:
		fix, ok := a.Fix()
		if !ok {
			return
		}
		topic, retained, v = topicFix, true, fix
	case gps.UpdateHeading:
		h, _ := a.Heading()
		topic, v = topicHeading, h
	default:
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("GPS JSON marshal error: %v", err)
		return
	}
	if err := publish(topic, retained, payload); err != nil {
		log.Printf("GPS publish error (%s): %v", topic, err)
		return
	}
	log.Printf("published %s: %s", topic, payload)
}
