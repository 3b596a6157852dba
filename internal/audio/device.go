package audio

import (
	"time"

	"github.com/gordonklaus/portaudio"
)

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

// Kind is "Input", "Output" or "Input/Output".
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return ""
	}
}

// CanCapture reports whether the device can feed a mono capture at
// sampleRate without resampling.
func (d Device) CanCapture(sampleRate float64) bool {
	return d.MaxInputChannels > 0 && d.DefaultSampleRate >= sampleRate
}

func deviceFromInfo(id int, info *portaudio.DeviceInfo) Device {
	return Device{
		ID:                id,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		LowInputLatency:   info.DefaultLowInputLatency,
		HighInputLatency:  info.DefaultHighInputLatency,
	}
}

// GetDevices initialises PortAudio, lists the devices and shuts it down
// again. Use it outside of a running capture.
func GetDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()

	return HostDevices()
}

// InputDevices filters devices down to those with input channels.
func InputDevices(devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out = append(out, d)
		}
	}
	return out
}
