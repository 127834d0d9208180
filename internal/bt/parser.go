package bt

import (
	"strconv"
	"strings"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

const (
	maxLineLen     = 250
	trackLogPeriod = 5 * time.Second
)

// Status report prefixes.
const (
	prefixA2DPStat  = "+A2DPSTAT="
	prefixA2DPInfo  = "+A2DPINFO="
	prefixAVRCPStat = "+AVRCPSTAT="
	prefixBrowData  = "+BROWDATA="
	prefixPlayStat  = "+PLAYSTAT="
	prefixDevStat   = "+DEVSTAT="
	prefixName      = "+NAME="
	prefixLEName    = "+LENAME="
	prefixTrackStat = "+TRACKSTAT="
	prefixTrackInfo = "+TRACKINFO="
)

var a2dpStates = map[int]ConnState{
	0: Disconnected,
	1: Disconnected,
	2: Connecting,
	3: ConnectedIdle,
	4: Paused,
	5: Playing,
}

// Playback codes: stopped, playing, paused, fast forward, rewind.
var playStates = map[int]ConnState{
	0: ConnectedIdle,
	1: Playing,
	2: Paused,
	3: Playing,
	4: Playing,
}

// PlayTimeSink receives the elapsed time of the current track.
type PlayTimeSink interface {
	SetPlayTime(minutes, seconds uint8)
}

// DevStatus is the decoded +DEVSTAT bitfield.
type DevStatus struct {
	Raw            int  `json:"raw"`
	PowerOn        bool `json:"powerOn"`
	Discoverable   bool `json:"discoverable"`
	BLEAdvertising bool `json:"bleAdvertising"`
	BRScanning     bool `json:"brScanning"`
	BLEScanning    bool `json:"bleScanning"`
}

func decodeDevStatus(v int) DevStatus {
	return DevStatus{
		Raw:            v,
		PowerOn:        v&0x01 != 0,
		Discoverable:   v&0x02 != 0,
		BLEAdvertising: v&0x04 != 0,
		BRScanning:     v&0x08 != 0,
		BLEScanning:    v&0x10 != 0,
	}
}

// TrackInfo is what the phone reports about the current track. Valid stays
// true once any report was parsed.
type TrackInfo struct {
	ElapsedSec int    `json:"elapsedSec"`
	TotalSec   int    `json:"totalSec"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Valid      bool   `json:"valid"`
}

// Report is the latest state reported by the module.
type Report struct {
	Dev       DevStatus `json:"dev"`
	Track     TrackInfo `json:"track"`
	Name      string    `json:"name,omitempty"`
	BLEName   string    `json:"bleName,omitempty"`
	AVRCP     int       `json:"avrcp"`
	A2DPInfo  string    `json:"a2dpInfo,omitempty"`
	LastLine  string    `json:"lastLine,omitempty"`
	LinesSeen uint32    `json:"linesSeen"`
}

// Parser turns module output into state updates. Write is meant to be
// called from a single reader goroutine.
type Parser struct {
	line []byte

	queue *Queue
	state *StateMachine
	clock PlayTimeSink

	lock   tryMutex
	report Report

	onTrack      func(TrackInfo)
	lastTrackLog time.Time
	now          func() time.Time
	log          *log.Logger
}

// NewParser creates a parser that closes commands on q, drives sm and
// forwards track progress to clock. clock may be nil.
func NewParser(q *Queue, sm *StateMachine, clock PlayTimeSink, logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.Nop()
	}
	return &Parser{
		line:  make([]byte, 0, maxLineLen+1),
		queue: q,
		state: sm,
		clock: clock,
		lock:  newTryMutex(),
		now:   time.Now,
		log:   logger,
	}
}

// OnTrackInfo registers a callback for +TRACKINFO metadata.
func (p *Parser) OnTrackInfo(fn func(TrackInfo)) {
	p.onTrack = fn
}

// Write consumes raw module output. CR is dropped, LF ends a line and a
// line longer than 250 bytes is discarded. It never fails.
func (p *Parser) Write(b []byte) (int, error) {
	for _, c := range b {
		switch c {
		case '\r':
		case '\n':
			if len(p.line) > 0 {
				p.HandleLine(string(p.line))
				p.line = p.line[:0]
			}
		default:
			p.line = append(p.line, c)
			if len(p.line) > maxLineLen {
				p.line = p.line[:0]
			}
		}
	}
	return len(b), nil
}

// HandleLine classifies one complete line.
func (p *Parser) HandleLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	p.log.Verbosef("<< %s", line)
	p.update(func(r *Report) {
		r.LastLine = line
		r.LinesSeen++
	})

	switch {
	case line == "OK":
		p.queue.Complete(true)

	case strings.HasPrefix(line, "ERROR"), strings.HasPrefix(line, "ERR"):
		p.queue.Complete(false)

	case strings.HasPrefix(line, prefixA2DPStat):
		if v, ok := leadingInt(line[len(prefixA2DPStat):]); ok {
			if s, known := a2dpStates[v]; known {
				p.state.Set(s)
			}
		}

	case strings.HasPrefix(line, prefixA2DPInfo):
		info := line[len(prefixA2DPInfo):]
		p.log.Debugf("A2DPINFO: %s", info)
		p.update(func(r *Report) { r.A2DPInfo = info })

	case strings.HasPrefix(line, prefixAVRCPStat):
		if v, ok := leadingInt(line[len(prefixAVRCPStat):]); ok {
			p.log.Debugf("AVRCP state=%d", v)
			p.update(func(r *Report) { r.AVRCP = v })
		}

	case strings.HasPrefix(line, prefixBrowData):
		p.log.Debugf("BROWDATA: %s", line)

	case strings.HasPrefix(line, prefixPlayStat):
		if v, ok := leadingInt(line[len(prefixPlayStat):]); ok {
			if s, known := playStates[v]; known {
				p.state.Set(s)
			}
		}

	case strings.HasPrefix(line, prefixDevStat):
		if v, ok := leadingInt(line[len(prefixDevStat):]); ok {
			dev := decodeDevStatus(v)
			p.update(func(r *Report) { r.Dev = dev })
			p.log.Debugf("DEVSTAT=%d P=%t DISC=%t BLEADV=%t BRSCAN=%t BLESCAN=%t",
				v, dev.PowerOn, dev.Discoverable, dev.BLEAdvertising, dev.BRScanning, dev.BLEScanning)
		}

	case strings.HasPrefix(line, prefixName):
		name := line[len(prefixName):]
		p.log.Debugf("Device Name: %s", name)
		p.update(func(r *Report) { r.Name = name })

	case strings.HasPrefix(line, prefixLEName):
		name := line[len(prefixLEName):]
		p.log.Debugf("BLE Name: %s", name)
		p.update(func(r *Report) { r.BLEName = name })

	case strings.HasPrefix(line, prefixTrackStat):
		p.handleTrackStat(line[len(prefixTrackStat):])

	case strings.HasPrefix(line, prefixTrackInfo):
		p.handleTrackInfo(line[len(prefixTrackInfo):])
	}
}

// handleTrackStat parses "state,elapsed,total".
func (p *Parser) handleTrackStat(params string) {
	c1 := strings.IndexByte(params, ',')
	if c1 <= 0 {
		return
	}
	c2 := strings.IndexByte(params[c1+1:], ',')
	if c2 < 0 {
		return
	}
	c2 += c1 + 1

	elapsed, _ := leadingInt(params[c1+1 : c2])
	total, _ := leadingInt(params[c2+1:])
	if elapsed < 0 {
		elapsed = 0
	}

	var info TrackInfo
	p.update(func(r *Report) {
		r.Track.ElapsedSec = elapsed
		r.Track.TotalSec = total
		r.Track.Valid = true
		info = r.Track
	})

	mm, ss := elapsed/60, elapsed%60
	if mm > 255 {
		mm = 255
	}
	if p.clock != nil {
		p.clock.SetPlayTime(uint8(mm), uint8(ss))
	}

	if now := p.now(); now.Sub(p.lastTrackLog) > trackLogPeriod {
		p.lastTrackLog = now
		p.log.Debugf("Track: %d:%02d / %d:%02d", mm, ss, info.TotalSec/60, info.TotalSec%60)
	}
}

// handleTrackInfo parses "title,artist[,album]".
func (p *Parser) handleTrackInfo(params string) {
	c1 := strings.IndexByte(params, ',')
	if c1 <= 0 {
		return
	}
	title := strings.TrimSpace(params[:c1])
	rest := params[c1+1:]
	artist, album := rest, ""
	if c2 := strings.IndexByte(rest, ','); c2 >= 0 {
		artist, album = rest[:c2], rest[c2+1:]
	}
	artist = strings.TrimSpace(artist)
	album = strings.TrimSpace(album)

	var info TrackInfo
	p.update(func(r *Report) {
		r.Track.Title = title
		r.Track.Artist = artist
		r.Track.Album = album
		r.Track.Valid = true
		info = r.Track
	})
	p.log.Infof("Now: %s - %s", title, artist)
	if p.onTrack != nil {
		p.onTrack(info)
	}
}

func (p *Parser) update(fn func(*Report)) {
	if !p.lock.tryLock(lockWait) {
		return
	}
	fn(&p.report)
	p.lock.unlock()
}

// Report returns a copy of the latest module report.
func (p *Parser) Report() Report {
	if !p.lock.tryLock(lockWait) {
		return Report{}
	}
	defer p.lock.unlock()
	return p.report
}

// leadingInt parses an optionally signed decimal prefix of s, ignoring
// leading spaces. ok is false when there are no digits.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " ")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
