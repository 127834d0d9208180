package bt

import (
	"strconv"
	"strings"
)

// Status requests and fixed commands.
const (
	CmdAT         = "AT"
	CmdVersion    = "AT+VER"
	CmdAddress    = "AT+ADDR"
	CmdA2DPStat   = "AT+A2DPSTAT"
	CmdA2DPInfo   = "AT+A2DPINFO"
	CmdAVRCPStat  = "AT+AVRCPSTAT"
	CmdDevStat    = "AT+DEVSTAT"
	CmdStat       = "AT+STAT"
	CmdHFPStat    = "AT+HFPSTAT"
	CmdScan       = "AT+SCAN=1"
	CmdA2DPConn   = "AT+A2DPCONN"
	CmdA2DPDisc   = "AT+A2DPDISC"
	CmdHFPConn    = "AT+HFPCONN"
	CmdHFPDisc    = "AT+HFPDISC"
	CmdDeletePD   = "AT+DELPD"
	CmdPlayPause  = "AT+PLAYPAUSE"
	CmdPlay       = "AT+PLAY"
	CmdPause      = "AT+PAUSE"
	CmdStop       = "AT+STOP"
	CmdForward    = "AT+FORWARD"
	CmdBackward   = "AT+BACKWARD"
	CmdAnswer     = "AT+HFPANSW"
	CmdHangup     = "AT+HFPCHUP"
	CmdReboot     = "AT+REBOOT"
	CmdGetName    = "AT+NAME"
	CmdGetLEName  = "AT+LENAME"
	CmdGetProfile = "AT+PROFILE"
	CmdGetAutoCon = "AT+AUTOCONN"
	CmdGetSSP     = "AT+SSP"
	CmdGetCOD     = "AT+COD"
	CmdGetSEP     = "AT+SEP"
)

// Factory defaults.
const (
	FactoryName        = "VW_BT1036"
	factoryMicGain     = 8
	factoryVolume      = 12
	factoryTxPower     = 10
	factoryProfileMask = 168 // HFP-HF, A2DP sink, AVRCP controller
	factorySSP         = 2
	factoryCOD         = "240404"
	factoryHFPRate     = 16000
	factoryHFPConfig   = 3 // auto reconnect, echo cancellation
	factoryAVRCPConfig = 3 // auto ID3, progress every second
	maxLevel           = 15
	maxSSPMode         = 3
	maxThreeWayMode    = 2
	defaultHFPRate     = 16000
)

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func clampLevel(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func withArgs(cmd string, args ...string) string {
	return cmd + "=" + strings.Join(args, ",")
}

// SetNameCmd sets the classic device name, optionally with an address suffix.
func SetNameCmd(name string, suffix bool) string {
	return withArgs("AT+NAME", name, flag(suffix))
}

func SetBLENameCmd(name string, suffix bool) string {
	return withArgs("AT+LENAME", name, flag(suffix))
}

func MicGainCmd(gain int) string {
	return withArgs("AT+MICGAIN", strconv.Itoa(clampLevel(gain, maxLevel)))
}

// SpeakerVolumeCmd sets the A2DP and HFP volumes, each 0..15.
func SpeakerVolumeCmd(a2dp, hfp int) string {
	return withArgs("AT+SPKVOL", strconv.Itoa(clampLevel(a2dp, maxLevel)), strconv.Itoa(clampLevel(hfp, maxLevel)))
}

func TxPowerCmd(level int) string {
	return withArgs("AT+TXPOWER", strconv.Itoa(clampLevel(level, maxLevel)))
}

func ProfileCmd(mask uint16) string {
	return withArgs("AT+PROFILE", strconv.Itoa(int(mask)))
}

func AutoConnCmd(mask uint16) string {
	return withArgs("AT+AUTOCONN", strconv.Itoa(int(mask)))
}

func SSPCmd(mode int) string {
	return withArgs("AT+SSP", strconv.Itoa(clampLevel(mode, maxSSPMode)))
}

// CODCmd sets the class of device as six hex digits.
func CODCmd(hex6 string) string {
	return withArgs("AT+COD", hex6)
}

func SEPCmd(v uint8) string {
	return withArgs("AT+SEP", strconv.Itoa(int(v)))
}

// HFPSampleRateCmd accepts 0, 8000, 16000 or 48000; anything else becomes
// 16000.
func HFPSampleRateCmd(rate int) string {
	switch rate {
	case 0, 8000, 16000, 48000:
	default:
		rate = defaultHFPRate
	}
	return withArgs("AT+HFPSR", strconv.Itoa(rate))
}

// HFPConfigCmd bits: 0 auto reconnect, 1 echo cancellation, 2 three-way calling.
func HFPConfigCmd(cfg uint8) string {
	return withArgs("AT+HFPCFG", strconv.Itoa(int(cfg)))
}

func AVRCPConfigCmd(cfg uint8) string {
	return withArgs("AT+AVRCPCFG", strconv.Itoa(int(cfg)))
}

// I2SConfigCmd sets the digital audio output bit field.
func I2SConfigCmd(cfg uint8) string {
	return withArgs("AT+I2SCFG", strconv.Itoa(int(cfg)))
}

func ThreeWayCmd(mode int) string {
	return withArgs("AT+HFPMCAL", strconv.Itoa(clampLevel(mode, maxThreeWayMode)))
}

func VoiceRecognitionCmd(on bool) string {
	return withArgs("AT+HFPVR", flag(on))
}

func MicMuteCmd(on bool) string {
	return withArgs("AT+MICMUTE", flag(on))
}

func BTEnableCmd(on bool) string {
	return withArgs("AT+BTEN", flag(on))
}

// FactorySetup is the one-shot configuration sequence for a fresh module.
// The module needs a reboot afterwards.
func FactorySetup() []string {
	return []string{
		SetNameCmd(FactoryName, false),
		SetBLENameCmd(FactoryName, false),
		MicGainCmd(factoryMicGain),
		SpeakerVolumeCmd(factoryVolume, factoryVolume),
		TxPowerCmd(factoryTxPower),
		ProfileCmd(factoryProfileMask),
		AutoConnCmd(factoryProfileMask),
		SSPCmd(factorySSP),
		CODCmd(factoryCOD),
		SEPCmd(0),
		HFPSampleRateCmd(factoryHFPRate),
		HFPConfigCmd(factoryHFPConfig),
		AVRCPConfigCmd(factoryAVRCPConfig),
	}
}

// PairingCmds drops current links and makes the module discoverable.
func PairingCmds() []string {
	return []string{CmdA2DPDisc, CmdHFPDisc, CmdScan}
}
