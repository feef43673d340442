package playback

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"castgate/internal/domain"
)

// Control-surface button labels. The callback payload for a control button
// is "c:{token}:{label}"; device-selection buttons use "s:{token}:{name}".
const (
	labelPlay    = "PLAY"
	labelStop    = "STOP"
	labelPause   = "PAUSE"
	labelResume  = "RESUME"
	labelRefresh = "REFRESH"
	labelDevice  = "DEVICE"

	prefixControl = "c"
	prefixSelect  = "s"

	noDeviceName = "NONE"
)

func controlButton(token domain.Token, label string) domain.Button {
	return domain.Button{
		Text: label,
		Data: fmt.Sprintf("%s:%s:%s", prefixControl, token, label),
	}
}

func selectButton(token domain.Token, name string) domain.Button {
	return domain.Button{
		Text: name,
		Data: fmt.Sprintf("%s:%s:%s", prefixSelect, token, name),
	}
}

func deviceStr(device domain.Device) string {
	name := noDeviceName
	if device != nil {
		name = device.Name()
	}
	return fmt.Sprintf("on device <code>%s</code>", html.EscapeString(name))
}

func messageStr(messageID int64) string {
	return fmt.Sprintf("for file <code>%d</code>", messageID)
}

func stoppedText(messageID int64, device domain.Device) string {
	return fmt.Sprintf("Controller %s %s", messageStr(messageID), deviceStr(device))
}

func closedText(messageID int64, device domain.Device, remaining float64) string {
	return fmt.Sprintf("Streaming closed %s %s, %.2f%% remains",
		messageStr(messageID), deviceStr(device), remaining*100)
}

func playingText(messageID int64, device domain.Device) string {
	return fmt.Sprintf("Playing %s %s", messageStr(messageID), deviceStr(device))
}

func pausedText(messageID int64, device domain.Device) string {
	return fmt.Sprintf("Paused %s %s", messageStr(messageID), deviceStr(device))
}

func stoppedButtons(token domain.Token) [][]domain.Button {
	return [][]domain.Button{
		{controlButton(token, labelDevice)},
		{controlButton(token, labelPlay)},
	}
}

func playingButtons(token domain.Token) [][]domain.Button {
	return [][]domain.Button{
		{controlButton(token, labelStop)},
		{controlButton(token, labelPause)},
	}
}

func pausedButtons(token domain.Token) [][]domain.Button {
	return [][]domain.Button{
		{controlButton(token, labelStop)},
		{controlButton(token, labelResume)},
	}
}

func selectorButtons(token domain.Token, devices []domain.Device) [][]domain.Button {
	rows := make([][]domain.Button, 0, len(devices)+1)
	for _, d := range devices {
		rows = append(rows, []domain.Button{selectButton(token, d.Name())})
	}
	return append(rows, []domain.Button{controlButton(token, labelRefresh)})
}

var (
	devicePattern = regexp.MustCompile(`on device ([^,]*)`)
	codeTags      = strings.NewReplacer("<code>", "", "</code>", "")
)

// ParseDeviceName recovers the device name a previously rendered control
// text encoded, or "" when the text names no device. The control texts above
// are the only place the "on device" phrasing may appear; changing that
// phrasing requires changing this parser in step.
func ParseDeviceName(text string) string {
	groups := devicePattern.FindStringSubmatch(codeTags.Replace(text))
	if groups == nil {
		return ""
	}
	name := strings.TrimSpace(groups[1])
	if name == noDeviceName {
		return ""
	}
	return name
}
