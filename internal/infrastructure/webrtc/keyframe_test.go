package webrtc

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func packetOf(payload ...byte) *rtp.Packet {
	return &rtp.Packet{Payload: payload}
}

func TestKeyframeDetector_Codecs(t *testing.T) {
	assert.NotNil(t, keyframeDetector(webrtc.MimeTypeVP8))
	assert.NotNil(t, keyframeDetector("video/h264"))
	assert.Nil(t, keyframeDetector(webrtc.MimeTypeOpus))
	assert.Nil(t, keyframeDetector(webrtc.MimeTypeVP9))
}

func TestIsVP8Keyframe(t *testing.T) {
	cases := []struct {
		name   string
		packet *rtp.Packet
		want   bool
	}{
		{"empty", packetOf(), false},
		{"keyframe without extensions", packetOf(0x10, 0x00), true},
		{"interframe without extensions", packetOf(0x10, 0x01), false},
		{"continuation packet", packetOf(0x00, 0x00), false},
		{"non-zero partition", packetOf(0x11, 0x00), false},
		{"keyframe with 15-bit picture id", packetOf(0x90, 0x80, 0x81, 0x23, 0x00), true},
		{"keyframe with 7-bit picture id", packetOf(0x90, 0x80, 0x12, 0x00), true},
		{"interframe with all extensions", packetOf(0x90, 0xF0, 0x12, 0x01, 0x20, 0x01), false},
		{"truncated descriptor", packetOf(0x90, 0x80), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isVP8Keyframe(tc.packet))
		})
	}
}

func TestIsH264Keyframe(t *testing.T) {
	cases := []struct {
		name   string
		packet *rtp.Packet
		want   bool
	}{
		{"empty", packetOf(), false},
		{"IDR slice", packetOf(0x65, 0x88), true},
		{"SPS", packetOf(0x67, 0x42), true},
		{"non-IDR slice", packetOf(0x41, 0x9a), false},
		{"STAP-A with SPS", packetOf(0x78, 0x00, 0x02, 0x67, 0x42, 0x00, 0x02, 0x68, 0xce), true},
		{"STAP-A without keyframe", packetOf(0x78, 0x00, 0x02, 0x41, 0x9a), false},
		{"STAP-A with bad length", packetOf(0x78, 0x00, 0x09, 0x67), false},
		{"FU-A start of IDR", packetOf(0x7c, 0x85, 0x88), true},
		{"FU-A middle of IDR", packetOf(0x7c, 0x05, 0x88), false},
		{"FU-A start of non-IDR", packetOf(0x7c, 0x81, 0x9a), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isH264Keyframe(tc.packet))
		})
	}
}
