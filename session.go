package slcan

import "fmt"

// Bitrate is one of the fixed S0..S8 bus speed profiles.
type Bitrate uint8

const (
	Bitrate10k Bitrate = iota
	Bitrate25k
	Bitrate50k
	Bitrate100k
	Bitrate125k
	Bitrate250k
	Bitrate500k
	Bitrate800k
	Bitrate1M
)

var bitrates = [...]int{
	Bitrate10k:  10_000,
	Bitrate25k:  25_000,
	Bitrate50k:  50_000,
	Bitrate100k: 100_000,
	Bitrate125k: 125_000,
	Bitrate250k: 250_000,
	Bitrate500k: 500_000,
	Bitrate800k: 800_000,
	Bitrate1M:   1_000_000,
}

// Bitrates lists every profile in S-command order.
func Bitrates() []Bitrate {
	out := make([]Bitrate, len(bitrates))
	for i := range bitrates {
		out[i] = Bitrate(i)
	}
	return out
}

// ParseBitrate maps the S command digit to a profile.
func ParseBitrate(c byte) (Bitrate, bool) {
	if c < '0' || c > '8' {
		return 0, false
	}
	return Bitrate(c - '0'), true
}

// BitrateFromKbit maps a speed in kbit/s to a profile.
func BitrateFromKbit(kbit float64) (Bitrate, error) {
	for i, bps := range bitrates {
		if float64(bps) == kbit*1000 {
			return Bitrate(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rate: %g kbit", kbit)
}

// BitsPerSecond returns the bus speed of the profile.
func (b Bitrate) BitsPerSecond() int {
	if int(b) >= len(bitrates) {
		return 0
	}
	return bitrates[b]
}

// Command returns the S command selecting this profile, without terminator.
func (b Bitrate) Command() string {
	return fmt.Sprintf("S%d", b)
}

func (b Bitrate) String() string {
	bps := b.BitsPerSecond()
	if bps == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dk", bps/1000)
}

// Session is the protocol state owned by the Dispatcher.
type Session struct {
	Open           bool
	Timestamp      bool
	CREcho         bool
	Bitrate        Bitrate
	AcceptanceCode uint32
	AcceptanceMask uint32
}

// DefaultSession is the power-on state: closed, 10 kbit, accept all.
func DefaultSession() Session {
	return Session{
		Bitrate:        Bitrate10k,
		AcceptanceCode: 0x00000000,
		AcceptanceMask: 0xFFFFFFFF,
	}
}

func (s Session) Filter() AcceptanceFilter {
	return AcceptanceFilter{Code: s.AcceptanceCode, Mask: s.AcceptanceMask}
}

// BusConfig is what gets handed to the bus on open.
func (s Session) BusConfig() BusConfig {
	return BusConfig{Bitrate: s.Bitrate, Filter: s.Filter()}
}

func (s Session) format() FrameFormat {
	return FrameFormat{Timestamp: s.Timestamp, LineFeed: s.CREcho}
}
