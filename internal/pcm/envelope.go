package pcm

import (
	"encoding/binary"
	"fmt"
)

// Envelope is the decoded form of a length-prefixed binary frame.
// TargetID and DroppedFrameCount are only present on loopback egress
// frames; they are the zero value (and omitted on the wire) for
// microphone ingress frames.
type Envelope struct {
	SessionID         string
	TargetID          string // loopback egress only
	HasTargetID       bool
	Sequence          uint64
	SampleRate        uint32
	Channels          uint16
	FrameCount        uint32
	ProtocolVersion   uint32
	DroppedFrameCount uint32
	HasDroppedCount   bool
	PCM               []byte
}

// EncodeLoopbackEgress serializes e, including TargetID and
// DroppedFrameCount, as a length-prefixed binary frame.
func EncodeLoopbackEgress(e Envelope) []byte {
	return encode(e, true, true)
}

// EncodeMicIngress serializes e without TargetID or DroppedFrameCount.
func EncodeMicIngress(e Envelope) []byte {
	return encode(e, false, false)
}

func encode(e Envelope, withTarget, withDropped bool) []byte {
	payload := make([]byte, 0, 64+len(e.PCM))
	payload = appendString16(payload, e.SessionID)
	if withTarget {
		payload = appendString16(payload, e.TargetID)
	}
	payload = appendU64(payload, e.Sequence)
	payload = appendU32(payload, e.SampleRate)
	payload = appendU16(payload, e.Channels)
	payload = appendU32(payload, e.FrameCount)
	payload = appendU32(payload, e.ProtocolVersion)
	if withDropped {
		payload = appendU32(payload, e.DroppedFrameCount)
	}
	payload = appendU32(payload, uint32(len(e.PCM)))
	payload = append(payload, e.PCM...)

	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// DecodeLoopbackEgress parses a full length-prefixed frame (length prefix
// included) as a loopback egress envelope.
func DecodeLoopbackEgress(frame []byte) (Envelope, error) {
	return decode(frame, true, true)
}

// DecodeMicIngress parses a full length-prefixed frame as a microphone
// ingress envelope.
func DecodeMicIngress(frame []byte) (Envelope, error) {
	return decode(frame, false, false)
}

func decode(frame []byte, withTarget, withDropped bool) (Envelope, error) {
	var e Envelope
	if len(frame) < 4 {
		return e, fmt.Errorf("pcm: frame too short for length prefix")
	}
	payloadLen := binary.LittleEndian.Uint32(frame)
	if payloadLen > MaxPayloadBytes {
		return e, fmt.Errorf("pcm: payload length %d exceeds max %d", payloadLen, MaxPayloadBytes)
	}
	if uint64(len(frame)) != uint64(4)+uint64(payloadLen) {
		return e, fmt.Errorf("pcm: total length %d does not match 4+payload_length %d", len(frame), 4+payloadLen)
	}
	p := frame[4:]

	sessionID, p, err := readString16(p)
	if err != nil {
		return e, err
	}
	if sessionID == "" {
		return e, fmt.Errorf("pcm: zero-length session_id")
	}
	e.SessionID = sessionID

	if withTarget {
		targetID, rest, err := readString16(p)
		if err != nil {
			return e, err
		}
		e.TargetID = targetID
		e.HasTargetID = true
		p = rest
	}

	seq, p, err := readU64(p)
	if err != nil {
		return e, err
	}
	e.Sequence = seq

	sampleRate, p, err := readU32(p)
	if err != nil {
		return e, err
	}
	if sampleRate == 0 {
		return e, fmt.Errorf("pcm: zero sample_rate")
	}
	e.SampleRate = sampleRate

	channels, p, err := readU16(p)
	if err != nil {
		return e, err
	}
	if channels == 0 || channels > 2 {
		return e, fmt.Errorf("pcm: invalid channels %d (must be 1 or 2)", channels)
	}
	e.Channels = channels

	frameCount, p, err := readU32(p)
	if err != nil {
		return e, err
	}
	e.FrameCount = frameCount

	protocolVersion, p, err := readU32(p)
	if err != nil {
		return e, err
	}
	e.ProtocolVersion = protocolVersion

	if withDropped {
		dropped, rest, err := readU32(p)
		if err != nil {
			return e, err
		}
		e.DroppedFrameCount = dropped
		e.HasDroppedCount = true
		p = rest
	}

	pcmLen, p, err := readU32(p)
	if err != nil {
		return e, err
	}
	if pcmLen%4 != 0 {
		return e, ErrOddSampleCount
	}
	if uint64(len(p)) != uint64(pcmLen) {
		return e, fmt.Errorf("pcm: truncated pcm payload: want %d bytes, have %d", pcmLen, len(p))
	}
	e.PCM = append([]byte(nil), p...)

	return e, nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendString16(b []byte, s string) []byte {
	b = appendU16(b, uint16(len(s)))
	return append(b, s...)
}

func readU16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, fmt.Errorf("pcm: truncated u16")
	}
	return binary.LittleEndian.Uint16(b), b[2:], nil
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("pcm: truncated u32")
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

func readU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("pcm: truncated u64")
	}
	return binary.LittleEndian.Uint64(b), b[8:], nil
}

func readString16(b []byte) (string, []byte, error) {
	n, rest, err := readU16(b)
	if err != nil {
		return "", nil, err
	}
	if len(rest) < int(n) {
		return "", nil, fmt.Errorf("pcm: truncated string of length %d", n)
	}
	return string(rest[:n]), rest[n:], nil
}
