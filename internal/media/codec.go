package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Static RTP payload types per RFC 3551.
const (
	PayloadTypePCMU = 0
	PayloadTypeG722 = 9
	PayloadTypePCMA = 8
)

// codecPref describes one entry in the codec preference order. Dynamic
// payload types (opus) carry -1 and take the payload type from the offer.
type codecPref struct {
	name        string
	clockRate   int
	payloadType int
	supported   bool
}

// codecPreference is the negotiation order for inbound offers. Entries with
// supported=false are recognized but skipped until a transcoder is wired for
// them. The G.722 clock is 8000 on the wire per RFC 3551 even though the
// codec runs at 16kHz.
var codecPreference = []codecPref{
	{name: "opus", clockRate: 48000, payloadType: -1, supported: true},
	{name: "G722", clockRate: 8000, payloadType: PayloadTypeG722, supported: true},
	{name: "PCMA", clockRate: 8000, payloadType: PayloadTypePCMA, supported: true},
	{name: "PCMU", clockRate: 8000, payloadType: PayloadTypePCMU, supported: true},
}

// SelectCodec picks the codec to answer with from an offered audio media
// section, walking our preference order and returning the first codec the
// engine can transcode. Static payload types (PCMA/PCMU) match even when the
// offer omits the rtpmap line.
func SelectCodec(offer *MediaDescription) (Codec, error) {
	for _, pref := range codecPreference {
		if !pref.supported {
			continue
		}

		if c := offer.CodecByName(pref.name); c != nil && clockAccepted(pref, c.ClockRate) {
			sel := *c
			sel.ClockRate = pref.clockRate
			return sel, nil
		}

		// Static payload types may appear in the m= line without an rtpmap.
		if pref.payloadType >= 0 && offer.HasFormat(pref.payloadType) {
			return Codec{
				PayloadType: pref.payloadType,
				Name:        pref.name,
				ClockRate:   pref.clockRate,
			}, nil
		}
	}
	return Codec{}, fmt.Errorf("no supported codec in offer (formats %v)", offer.Formats)
}

// clockAccepted reports whether an offered rtpmap clock matches a preference
// entry. Some stacks advertise G722/16000 instead of the RFC 3551 mandated
// G722/8000; both mean the same codec.
func clockAccepted(pref codecPref, offered int) bool {
	if offered == pref.clockRate {
		return true
	}
	return pref.payloadType == PayloadTypeG722 && offered == 16000
}

// IsOpus reports whether the codec is Opus.
func (c Codec) IsOpus() bool {
	return strings.EqualFold(c.Name, "opus")
}

// IsG722 reports whether the codec is G.722.
func (c Codec) IsG722() bool {
	return strings.EqualFold(c.Name, "G722")
}

// IsPCMU reports whether the codec is G.711 mu-law.
func (c Codec) IsPCMU() bool {
	return strings.EqualFold(c.Name, "PCMU")
}

// BuildAnswer constructs the SDP answer for an accepted call: one audio
// section with the single negotiated codec, our advertised address and the
// allocated RTP port.
func BuildAnswer(codec Codec, addr string, rtpPort int, sessionID string) *SessionDescription {
	conn := &Connection{NetType: "IN", AddrType: "IP4", Address: addr}

	attrs := []string{
		"rtpmap:" + codec.String(),
	}
	if codec.Fmtp != "" {
		attrs = append(attrs, "fmtp:"+strconv.Itoa(codec.PayloadType)+" "+codec.Fmtp)
	}
	attrs = append(attrs, "ptime:20", "sendrecv")

	return &SessionDescription{
		Version: 0,
		Origin: Origin{
			Username:       "voicegate",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetType:        "IN",
			AddrType:       "IP4",
			Address:        addr,
		},
		SessionName: "voicegate",
		Connection:  conn,
		Time:        "0 0",
		Media: []MediaDescription{
			{
				Type:       "audio",
				Port:       rtpPort,
				Proto:      "RTP/AVP",
				Formats:    []int{codec.PayloadType},
				Codecs:     []Codec{codec},
				Attributes: attrs,
				Direction:  "sendrecv",
			},
		},
	}
}
