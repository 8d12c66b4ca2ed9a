package gps

// Fix represents the best known position of the receiver, suitable for JSON and MQTT.
// Accuracy values below zero mean the receiver did not report them.
type Fix struct {
	Time               string  `json:"time"`               // RFC3339, receiver clock; empty until RMC carries a date
	Latitude           float64 `json:"latitude"`           // decimal degrees
	Longitude          float64 `json:"longitude"`          // decimal degrees
	Altitude           float64 `json:"altitude"`           // metres above mean sea level
	HorizontalAccuracy float64 `json:"horizontalAccuracy"` // metres, HDOP × UERE
	VerticalAccuracy   float64 `json:"verticalAccuracy"`   // metres, VDOP × UERE
	Speed              float64 `json:"speed"`              // metres per second over ground
	SpeedAccuracy      float64 `json:"speedAccuracy"`      // metres per second, -1 when unknown
	CourseDeg          float64 `json:"course"`             // course over ground
	Validity           string  `json:"validity"`           // "A" (valid) / "V" (void)
}

// Heading is one magnetic heading reading.
type Heading struct {
	MagneticHeading float64 `json:"magneticHeading"` // degrees, 0..360
	Accuracy        float64 `json:"accuracy"`        // degrees, negative means unreliable
	Time            string  `json:"time,omitempty"`
}

// Reliable reports whether the reading should be used.
func (h Heading) Reliable() bool {
	return h.Accuracy >= 0
}
