package media

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Connection is the payload of a c= line (RFC 4566 section 5.7).
type Connection struct {
	NetType  string // "IN"
	AddrType string // "IP4" or "IP6"
	Address  string
}

func (c Connection) String() string {
	return c.NetType + " " + c.AddrType + " " + c.Address
}

// Origin is the payload of an o= line.
type Origin struct {
	Username       string
	SessionID      string
	SessionVersion string
	NetType        string
	AddrType       string
	Address        string
}

func (o Origin) String() string {
	return strings.Join([]string{
		o.Username, o.SessionID, o.SessionVersion, o.NetType, o.AddrType, o.Address,
	}, " ")
}

// Codec is one rtpmap entry of an audio section, with its fmtp parameters
// when the offer carries any.
type Codec struct {
	PayloadType int
	Name        string // "PCMU", "PCMA", "G722", "opus"
	ClockRate   int
	Channels    int // 0 when the rtpmap omits the channel count
	Fmtp        string
}

// String renders the codec as an rtpmap value: "<pt> <name>/<rate>[/<ch>]".
func (c Codec) String() string {
	s := strconv.Itoa(c.PayloadType) + " " + c.Name + "/" + strconv.Itoa(c.ClockRate)
	if c.Channels > 0 {
		s += "/" + strconv.Itoa(c.Channels)
	}
	return s
}

// MediaDescription is one m= section with the attributes that follow it.
type MediaDescription struct {
	Type       string // "audio", "video"
	Port       int
	NumPorts   int // 0 means a single port
	Proto      string
	Formats    []int
	Connection *Connection // media-level c=, overrides the session one
	Codecs     []Codec
	Attributes []string // raw a= values in offer order
	Direction  string   // sendrecv unless the offer says otherwise
}

// CodecByName returns the first codec matching name, ignoring case. SIP
// stacks disagree on "PCMU" vs "pcmu".
func (m *MediaDescription) CodecByName(name string) *Codec {
	for i := range m.Codecs {
		if strings.EqualFold(m.Codecs[i].Name, name) {
			return &m.Codecs[i]
		}
	}
	return nil
}

// HasFormat reports whether the m= line lists payload type pt. Static types
// may appear here with no rtpmap at all.
func (m *MediaDescription) HasFormat(pt int) bool {
	for _, f := range m.Formats {
		if f == pt {
			return true
		}
	}
	return false
}

// SessionDescription is a parsed SDP body.
type SessionDescription struct {
	Version     int
	Origin      Origin
	SessionName string
	Connection  *Connection
	Time        string
	Media       []MediaDescription
	Attributes  []string // session-level a= values
}

// AudioMedia returns the first audio section, or nil when the offer has
// none.
func (s *SessionDescription) AudioMedia() *MediaDescription {
	for i := range s.Media {
		if s.Media[i].Type == "audio" {
			return &s.Media[i]
		}
	}
	return nil
}

// ConnectionAddress resolves where to send RTP for a media section: the
// media-level c= wins over the session-level one.
func (s *SessionDescription) ConnectionAddress(m *MediaDescription) string {
	if m.Connection != nil {
		return m.Connection.Address
	}
	if s.Connection != nil {
		return s.Connection.Address
	}
	return ""
}

// ParseSDP parses an SDP offer or answer. Lines it does not recognize are
// skipped rather than rejected; trunks attach all sorts of extras.
func ParseSDP(data []byte) (*SessionDescription, error) {
	body := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if body == "" {
		return nil, fmt.Errorf("empty sdp body")
	}

	sd := &SessionDescription{}
	var cur *MediaDescription

	for _, line := range strings.Split(body, "\n") {
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		val := line[2:]

		switch line[0] {
		case 'v':
			v, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("bad v= line %q: %w", val, err)
			}
			sd.Version = v

		case 'o':
			f := strings.Fields(val)
			if len(f) < 6 {
				return nil, fmt.Errorf("bad o= line %q", val)
			}
			sd.Origin = Origin{
				Username: f[0], SessionID: f[1], SessionVersion: f[2],
				NetType: f[3], AddrType: f[4], Address: f[5],
			}

		case 's':
			sd.SessionName = val

		case 'c':
			conn, err := parseConnLine(val)
			if err != nil {
				return nil, err
			}
			if cur != nil {
				cur.Connection = &conn
			} else {
				sd.Connection = &conn
			}

		case 't':
			sd.Time = val

		case 'm':
			md, err := parseMediaLine(val)
			if err != nil {
				return nil, err
			}
			sd.Media = append(sd.Media, md)
			cur = &sd.Media[len(sd.Media)-1]

		case 'a':
			if cur == nil {
				sd.Attributes = append(sd.Attributes, val)
				continue
			}
			cur.Attributes = append(cur.Attributes, val)
			applyMediaAttr(cur, val)
		}
	}

	return sd, nil
}

// Marshal renders the description with CRLF line endings in RFC 4566 field
// order.
func (s *SessionDescription) Marshal() []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "v=%d\r\n", s.Version)
	fmt.Fprintf(&b, "o=%s\r\n", s.Origin)
	fmt.Fprintf(&b, "s=%s\r\n", s.SessionName)
	if s.Connection != nil {
		fmt.Fprintf(&b, "c=%s\r\n", s.Connection)
	}
	fmt.Fprintf(&b, "t=%s\r\n", s.Time)
	for _, a := range s.Attributes {
		fmt.Fprintf(&b, "a=%s\r\n", a)
	}

	for _, m := range s.Media {
		port := strconv.Itoa(m.Port)
		if m.NumPorts > 0 {
			port += "/" + strconv.Itoa(m.NumPorts)
		}
		pts := make([]string, len(m.Formats))
		for i, f := range m.Formats {
			pts[i] = strconv.Itoa(f)
		}
		fmt.Fprintf(&b, "m=%s %s %s %s\r\n", m.Type, port, m.Proto, strings.Join(pts, " "))
		if m.Connection != nil {
			fmt.Fprintf(&b, "c=%s\r\n", m.Connection)
		}
		for _, a := range m.Attributes {
			fmt.Fprintf(&b, "a=%s\r\n", a)
		}
	}

	return []byte(b.String())
}

func parseConnLine(val string) (Connection, error) {
	f := strings.Fields(val)
	if len(f) < 3 {
		return Connection{}, fmt.Errorf("bad c= line %q", val)
	}

	// Multicast addresses carry a /ttl suffix we do not need.
	addr, _, _ := strings.Cut(f[2], "/")
	if net.ParseIP(addr) == nil {
		return Connection{}, fmt.Errorf("bad c= address %q", addr)
	}

	return Connection{NetType: f[0], AddrType: f[1], Address: addr}, nil
}

func parseMediaLine(val string) (MediaDescription, error) {
	f := strings.Fields(val)
	if len(f) < 4 {
		return MediaDescription{}, fmt.Errorf("bad m= line %q", val)
	}

	md := MediaDescription{
		Type:  f[0],
		Proto: f[2],
		// Direction defaults to sendrecv per RFC 3264 until an attribute
		// says otherwise.
		Direction: "sendrecv",
	}

	portPart, countPart, ranged := strings.Cut(f[1], "/")
	port, err := strconv.Atoi(portPart)
	if err != nil {
		return MediaDescription{}, fmt.Errorf("bad m= port %q: %w", f[1], err)
	}
	md.Port = port
	if ranged {
		n, err := strconv.Atoi(countPart)
		if err != nil {
			return MediaDescription{}, fmt.Errorf("bad m= port count %q: %w", f[1], err)
		}
		md.NumPorts = n
	}

	for _, s := range f[3:] {
		pt, err := strconv.Atoi(s)
		if err != nil {
			return MediaDescription{}, fmt.Errorf("bad m= payload type %q: %w", s, err)
		}
		md.Formats = append(md.Formats, pt)
	}

	return md, nil
}

// applyMediaAttr folds one a= value into the media section. Unknown
// attributes stay in Attributes but carry no structure.
func applyMediaAttr(md *MediaDescription, attr string) {
	switch {
	case strings.HasPrefix(attr, "rtpmap:"):
		codec, ok := parseRtpmap(strings.TrimPrefix(attr, "rtpmap:"))
		if !ok {
			return
		}
		// An fmtp for this payload type may already be parked on a
		// placeholder entry.
		for i := range md.Codecs {
			if md.Codecs[i].PayloadType == codec.PayloadType {
				codec.Fmtp = md.Codecs[i].Fmtp
				md.Codecs[i] = codec
				return
			}
		}
		md.Codecs = append(md.Codecs, codec)

	case strings.HasPrefix(attr, "fmtp:"):
		ptStr, params, ok := strings.Cut(strings.TrimPrefix(attr, "fmtp:"), " ")
		if !ok {
			return
		}
		pt, err := strconv.Atoi(ptStr)
		if err != nil {
			return
		}
		for i := range md.Codecs {
			if md.Codecs[i].PayloadType == pt {
				md.Codecs[i].Fmtp = params
				return
			}
		}
		// fmtp ahead of its rtpmap: park it on a placeholder.
		md.Codecs = append(md.Codecs, Codec{PayloadType: pt, Fmtp: params})

	case attr == "sendrecv" || attr == "sendonly" || attr == "recvonly" || attr == "inactive":
		md.Direction = attr
	}
}

// parseRtpmap parses "<pt> <name>/<rate>[/<channels>]".
func parseRtpmap(val string) (Codec, bool) {
	ptStr, enc, found := strings.Cut(val, " ")
	if !found {
		return Codec{}, false
	}
	pt, err := strconv.Atoi(ptStr)
	if err != nil {
		return Codec{}, false
	}

	parts := strings.Split(enc, "/")
	if len(parts) < 2 {
		return Codec{}, false
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return Codec{}, false
	}

	codec := Codec{PayloadType: pt, Name: parts[0], ClockRate: rate}
	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			codec.Channels = ch
		}
	}
	return codec, true
}
