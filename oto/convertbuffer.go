package oto

import (
	"math"

	"github.com/tahti-audio/tahti"
)

// appendFloat32LE appends the stereo frames to dst as interleaved
// little-endian float32 bytes, the wire format the oto player expects.
func appendFloat32LE(dst []byte, buf tahti.AudioBuffer) []byte {
	for _, frame := range buf {
		l := math.Float32bits(frame[0])
		r := math.Float32bits(frame[1])
		dst = append(dst,
			byte(l), byte(l>>8), byte(l>>16), byte(l>>24),
			byte(r), byte(r>>8), byte(r>>16), byte(r>>24))
	}
	return dst
}
