package cmd

import (
	"fmt"
	"io"

	"wakeword/internal/audio"
	"wakeword/internal/tui"

	"gopkg.in/yaml.v3"
)

func listDevices(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}

// pickDevice runs the picker and prints the matching capture config.
func pickDevice(w io.Writer) error {
	sel, ok, err := tui.RunDevicePicker(audio.GetDevices)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "No device selected.")
		return nil
	}
	return writeCaptureConfig(w, sel)
}

func writeCaptureConfig(w io.Writer, sel tui.Selection) error {
	snippet := map[string]any{
		"capture": map[string]any{
			"source":       "portaudio",
			"input_device": sel.DeviceID,
			"sample_rate":  sel.SampleRate,
		},
	}
	fmt.Fprintf(w, "# %s\n", sel.DeviceName)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snippet); err != nil {
		return err
	}
	return enc.Close()
}
