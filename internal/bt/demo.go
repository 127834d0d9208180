package bt

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"
)

var demoTracks = []struct {
	title, artist, album string
	seconds              int
}{
	{"Autobahn", "Kraftwerk", "Autobahn", 1362},
	{"Das Model", "Kraftwerk", "Die Mensch-Maschine", 222},
	{"Blue Monday", "New Order", "Power, Corruption & Lies", 449},
	{"Enjoy the Silence", "Depeche Mode", "Violator", 373},
}

// DemoPort simulates a BT1036 with a phone that connects a few polls
// after discovery starts. It answers every command with OK and reports
// track progress every second while playing.
type DemoPort struct {
	mu        sync.Mutex
	connected bool
	in        []byte
	out       bytes.Buffer

	link         int // +A2DPSTAT code
	discoverable bool
	track        int
	elapsed      int
	lastTick     time.Time
	pollsToLink  int

	now func() time.Time
}

func NewDemoPort() *DemoPort {
	return &DemoPort{link: 1, now: time.Now}
}

func (d *DemoPort) Name() string { return "BT1036 (simulated)" }

func (d *DemoPort) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.pollsToLink = 2
	d.discoverable = true
	return nil
}

func (d *DemoPort) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *DemoPort) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Write takes CRLF terminated commands.
func (d *DemoPort) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return 0, ErrNotConnected
	}
	d.in = append(d.in, p...)
	for {
		i := bytes.IndexByte(d.in, '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(d.in[:i]))
		d.in = d.in[i+1:]
		if cmd != "" {
			d.handle(cmd)
		}
	}
	return len(p), nil
}

// Read returns pending output, or nothing after a short wait.
func (d *DemoPort) Read(p []byte) (int, error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return 0, ErrNotConnected
	}
	d.tick()
	if d.out.Len() > 0 {
		n, _ := d.out.Read(p)
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	return 0, nil
}

func (d *DemoPort) reply(lines ...string) {
	for _, l := range lines {
		d.out.WriteString(l)
		d.out.WriteString("\r\n")
	}
}

// tick advances playback. Caller holds mu.
func (d *DemoPort) tick() {
	now := d.now()
	if d.lastTick.IsZero() {
		d.lastTick = now
		return
	}
	if now.Sub(d.lastTick) < time.Second {
		return
	}
	d.lastTick = now
	if d.link != 5 {
		return
	}
	d.elapsed++
	if d.elapsed >= demoTracks[d.track].seconds {
		d.changeTrack(1)
	}
	d.reply(fmt.Sprintf("+TRACKSTAT=1,%d,%d", d.elapsed, demoTracks[d.track].seconds))
}

func (d *DemoPort) changeTrack(step int) {
	d.track = (d.track + step + len(demoTracks)) % len(demoTracks)
	d.elapsed = 0
	t := demoTracks[d.track]
	d.reply(fmt.Sprintf("+TRACKINFO=%s,%s,%s", t.title, t.artist, t.album))
}

func (d *DemoPort) devStat() int {
	v := 1
	if d.discoverable {
		v |= 0x02 | 0x08
	}
	return v
}

// handle answers one command. Caller holds mu.
func (d *DemoPort) handle(cmd string) {
	switch {
	case cmd == CmdVersion:
		d.reply("+VER=demo-1.0")
	case cmd == CmdAddress:
		d.reply("+ADDR=00:11:22:33:44:55")
	case cmd == CmdA2DPStat:
		if d.discoverable && d.link < 3 {
			d.pollsToLink--
			if d.pollsToLink <= 0 {
				d.link = 3
				d.discoverable = false
			} else {
				d.link = 2
			}
		}
		d.reply(fmt.Sprintf("+A2DPSTAT=%d", d.link))
	case cmd == CmdDevStat:
		d.reply(fmt.Sprintf("+DEVSTAT=%d", d.devStat()))
	case cmd == CmdScan:
		d.discoverable = true
		d.pollsToLink = 2
	case cmd == CmdA2DPDisc:
		d.link = 1
	case cmd == CmdDeletePD:
		d.link = 1
	case cmd == CmdPlay:
		d.setPlay(5)
	case cmd == CmdPause:
		d.setPlay(4)
	case cmd == CmdPlayPause:
		if d.link == 5 {
			d.setPlay(4)
		} else {
			d.setPlay(5)
		}
	case cmd == CmdStop:
		d.setPlay(3)
	case cmd == CmdForward:
		d.changeTrack(1)
	case cmd == CmdBackward:
		d.changeTrack(-1)
	case cmd == CmdGetName, strings.HasPrefix(cmd, "AT+NAME="):
		d.reply("+NAME=" + FactoryName)
	case cmd == CmdGetLEName, strings.HasPrefix(cmd, "AT+LENAME="):
		d.reply("+LENAME=" + FactoryName)
	case cmd == CmdReboot:
		d.link = 1
		d.discoverable = true
		d.pollsToLink = 2
	case !strings.HasPrefix(cmd, "AT"):
		d.reply("ERROR")
		return
	}
	d.reply("OK")
}

func (d *DemoPort) setPlay(link int) {
	if d.link < 3 {
		return
	}
	d.link = link
	switch link {
	case 5:
		d.reply("+PLAYSTAT=1")
		if d.elapsed == 0 {
			t := demoTracks[d.track]
			d.reply(fmt.Sprintf("+TRACKINFO=%s,%s,%s", t.title, t.artist, t.album))
		}
	case 4:
		d.reply("+PLAYSTAT=2")
	default:
		d.reply("+PLAYSTAT=0")
	}
}
