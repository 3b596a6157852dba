// Package tui is an interactive picker for the capture device and rate.
package tui

import (
	"fmt"
	"strings"

	"wakeword/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777"))
)

// CaptureRates are the rates offered for keyword capture.
var CaptureRates = []float64{8000, 16000, 22050, 44100, 48000}

var (
	keyQuit  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp    = key.NewBinding(key.WithKeys("up", "k"))
	keyDown  = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter = key.NewBinding(key.WithKeys("enter"))
	keyBack  = key.NewBinding(key.WithKeys("esc"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	RateScreen
)

// Selection is the device and rate chosen by the user.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
}

// DeviceFetcher lists the host's devices.
type DeviceFetcher func() ([]audio.Device, error)

// DevicePickerModel is the Bubble Tea model of the picker.
type DevicePickerModel struct {
	fetch         DeviceFetcher
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	rateIndex int
	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDevicePickerModel creates a picker over the input devices returned by
// fetch.
func NewDevicePickerModel(fetch DeviceFetcher) DevicePickerModel {
	return DevicePickerModel{fetch: fetch, activeScreen: ListScreen}
}

// Init fetches the devices.
func (m DevicePickerModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{audio.InputDevices(devices)}
	}
}

// Selection returns the confirmed choice, if any.
func (m DevicePickerModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DevicePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = 0
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.devices) > 0 {
					m.activeScreen = RateScreen
					m.rateIndex = m.defaultRateIndex()
				}
			}
		case RateScreen:
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.rateIndex > 0 {
					m.rateIndex--
				}
			case key.Matches(msg, keyDown):
				if m.rateIndex < len(CaptureRates)-1 {
					m.rateIndex++
				}
			case key.Matches(msg, keyEnter):
				d := m.devices[m.selectedIndex]
				rate := CaptureRates[m.rateIndex]
				if d.CanCapture(rate) {
					m.selection = &Selection{DeviceID: d.ID, DeviceName: d.Name, SampleRate: rate}
					return m, tea.Quit
				}
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// defaultRateIndex prefers 16 kHz, the keyword model's rate.
func (m DevicePickerModel) defaultRateIndex() int {
	d := m.devices[m.selectedIndex]
	best := 0
	for i, rate := range CaptureRates {
		if rate == 16000 && d.CanCapture(rate) {
			return i
		}
		if d.CanCapture(rate) {
			best = i
		}
	}
	return best
}

func (m *DevicePickerModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == RateScreen {
		m.viewport.SetContent(m.renderRates())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI
func (m DevicePickerModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Device")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Choose rate • q: Quit")
	} else {
		title = titleStyle.Render("Capture Rate")
		help = infoStyle.Render("↑/↓: Change rate • Enter: Confirm • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DevicePickerModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s\n", device.ID, device.Name)
		info += fmt.Sprintf("    Input channels: %d, default rate: %.0f Hz, latency: %.1fms\n",
			device.MaxInputChannels, device.DefaultSampleRate,
			device.LowInputLatency.Seconds()*1000)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DevicePickerModel) renderRates() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Capture from: %s\n\n", device.Name)
	for i, rate := range CaptureRates {
		marker := " "
		if i == m.rateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		switch {
		case !device.CanCapture(rate):
			line = dimStyle.Render(strings.TrimSuffix(line, "\n") + " (unsupported)\n")
		case i == m.rateIndex:
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// RunDevicePicker runs the picker full screen and returns the choice.
func RunDevicePicker(fetch DeviceFetcher) (Selection, bool, error) {
	p := tea.NewProgram(NewDevicePickerModel(fetch), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok := final.(DevicePickerModel).Selection()
	return sel, ok, nil
}
