package bt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownAction = errors.New("bt: unknown action")
	ErrInvalidArg    = errors.New("bt: invalid argument")
)

// actions are the one-shot controls accepted by Action.
var actions = map[string]func(m *Module){
	"playpause":  (*Module).PlayPause,
	"play":       func(m *Module) { m.Send(CmdPlay) },
	"pause":      func(m *Module) { m.Send(CmdPause) },
	"stop":       func(m *Module) { m.Send(CmdStop) },
	"next":       (*Module).Next,
	"prev":       (*Module).Prev,
	"connect":    (*Module).ConnectLast,
	"connecthfp": func(m *Module) { m.Send(CmdHFPConn) },
	"disconnect": (*Module).Disconnect,
	"scan":       (*Module).Scan,
	"answer":     func(m *Module) { m.Send(CmdAnswer) },
	"hangup":     func(m *Module) { m.Send(CmdHangup) },
	"voice":      func(m *Module) { m.Send(VoiceRecognitionCmd(true)) },
	"voiceoff":   func(m *Module) { m.Send(VoiceRecognitionCmd(false)) },
	"bton":       func(m *Module) { m.Send(BTEnableCmd(true)) },
	"btoff":      func(m *Module) { m.Send(BTEnableCmd(false)) },
}

// Actions lists the names accepted by Action.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action runs a named control such as "next" or "connect".
func (m *Module) Action(name string) error {
	fn, ok := actions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
	m.log.Infof("action: %s", name)
	fn(m)
	return nil
}

func (m *Module) PlayPause() { m.Send(CmdPlayPause) }
func (m *Module) Next()      { m.Send(CmdForward) }
func (m *Module) Prev()      { m.Send(CmdBackward) }

// ConnectLast reconnects A2DP to the last paired phone.
func (m *Module) ConnectLast() { m.Send(CmdA2DPConn) }

// Scan makes the module discoverable without dropping current links.
func (m *Module) Scan() { m.Send(CmdScan) }

// AudioSettings are levels 0..15; out of range values are clamped. I2S is
// only sent when set.
type AudioSettings struct {
	MicGain    int    `json:"micGain"`
	A2DPVolume int    `json:"a2dpVolume"`
	HFPVolume  int    `json:"hfpVolume"`
	TxPower    int    `json:"txPower"`
	I2S        *uint8 `json:"i2s,omitempty"`
}

func (m *Module) SetAudio(a AudioSettings) {
	cmds := []string{
		MicGainCmd(a.MicGain),
		SpeakerVolumeCmd(a.A2DPVolume, a.HFPVolume),
		TxPowerCmd(a.TxPower),
	}
	if a.I2S != nil {
		cmds = append(cmds, I2SConfigCmd(*a.I2S))
	}
	m.SendBatch(cmds)
}

// BasicSettings are the device identity. Empty fields are left unchanged.
type BasicSettings struct {
	Name       string `json:"name"`
	NameSuffix bool   `json:"nameSuffix"`
	BLEName    string `json:"bleName"`
	BLESuffix  bool   `json:"bleSuffix"`
	COD        string `json:"cod"`
}

// SetBasic validates every field before queueing any of them.
func (m *Module) SetBasic(b BasicSettings) error {
	for _, name := range []string{b.Name, b.BLEName} {
		if strings.ContainsAny(name, ",\r\n") {
			return fmt.Errorf("%w: name %q", ErrInvalidArg, name)
		}
	}
	if b.COD != "" && !isHex6(b.COD) {
		return fmt.Errorf("%w: class of device %q is not six hex digits", ErrInvalidArg, b.COD)
	}

	var cmds []string
	if b.Name != "" {
		cmds = append(cmds, SetNameCmd(b.Name, b.NameSuffix))
	}
	if b.BLEName != "" {
		cmds = append(cmds, SetBLENameCmd(b.BLEName, b.BLESuffix))
	}
	if b.COD != "" {
		cmds = append(cmds, CODCmd(strings.ToUpper(b.COD)))
	}
	m.SendBatch(cmds)
	return nil
}

func isHex6(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// SetProfile sets the enabled profile mask and the auto-connect mask.
func (m *Module) SetProfile(profile, autoConn uint16) {
	m.SendBatch([]string{ProfileCmd(profile), AutoConnCmd(autoConn)})
}

// HFPSettings configure hands-free calls. ThreeWay is only sent when set.
type HFPSettings struct {
	SampleRate int   `json:"rate"`
	Config     uint8 `json:"cfg"`
	ThreeWay   *int  `json:"threeWay,omitempty"`
}

func (m *Module) SetHFP(h HFPSettings) {
	cmds := []string{HFPSampleRateCmd(h.SampleRate), HFPConfigCmd(h.Config)}
	if h.ThreeWay != nil {
		cmds = append(cmds, ThreeWayCmd(*h.ThreeWay))
	}
	m.SendBatch(cmds)
}

// SettingsQuery reads back the stored configuration and the link details.
// Replies show up in the log.
func SettingsQuery() []string {
	return []string{
		CmdStat,
		CmdA2DPInfo,
		CmdAVRCPStat,
		CmdHFPStat,
		CmdGetName,
		CmdGetLEName,
		CmdGetProfile,
		CmdGetAutoCon,
		CmdGetSSP,
		CmdGetCOD,
		CmdGetSEP,
	}
}

func (m *Module) QuerySettings() {
	m.SendBatch(SettingsQuery())
}
