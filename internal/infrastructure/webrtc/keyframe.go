package webrtc

import (
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// KeyframeDetector reports whether an RTP packet starts a keyframe.
type KeyframeDetector func(packet *rtp.Packet) bool

// keyframeDetector returns the detector for a codec, or nil when the codec
// carries no keyframes or is not recognised.
func keyframeDetector(mimeType string) KeyframeDetector {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return isVP8Keyframe
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return isH264Keyframe
	default:
		return nil
	}
}

// isVP8Keyframe parses the VP8 payload descriptor (RFC 7741 section 4.2)
// and checks the P bit of the first partition's frame header.
func isVP8Keyframe(packet *rtp.Packet) bool {
	payload := packet.Payload
	if len(payload) < 1 {
		return false
	}
	first := payload[0]
	// Only the start of partition 0 carries the frame header.
	if first&0x10 == 0 || first&0x07 != 0 {
		return false
	}

	offset := 1
	if first&0x80 != 0 {
		if len(payload) < 2 {
			return false
		}
		ext := payload[1]
		offset++
		if ext&0x80 != 0 { // PictureID
			if len(payload) <= offset {
				return false
			}
			if payload[offset]&0x80 != 0 {
				offset += 2
			} else {
				offset++
			}
		}
		if ext&0x40 != 0 { // TL0PICIDX
			offset++
		}
		if ext&0x30 != 0 { // TID/KEYIDX
			offset++
		}
	}
	if len(payload) <= offset {
		return false
	}
	return payload[offset]&0x01 == 0
}

const (
	naluIDR  = 5
	naluSPS  = 7
	naluSTAP = 24
	naluFU   = 28
)

// isH264Keyframe looks for an IDR slice or SPS in single, STAP-A and the
// first fragment of FU-A packets (RFC 6184).
func isH264Keyframe(packet *rtp.Packet) bool {
	payload := packet.Payload
	if len(payload) < 1 {
		return false
	}

	switch naluType := payload[0] & 0x1F; naluType {
	case naluIDR, naluSPS:
		return true
	case naluSTAP:
		for offset := 1; offset+2 < len(payload); {
			size := int(payload[offset])<<8 | int(payload[offset+1])
			offset += 2
			if size == 0 || offset+size > len(payload) {
				return false
			}
			if t := payload[offset] & 0x1F; t == naluIDR || t == naluSPS {
				return true
			}
			offset += size
		}
		return false
	case naluFU:
		if len(payload) < 2 {
			return false
		}
		start := payload[1]&0x80 != 0
		return start && payload[1]&0x1F == naluIDR
	default:
		return false
	}
}
