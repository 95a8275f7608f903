// Package audio converts between Twilio's 8kHz G.711 mu-law frames and the
// 16-bit little-endian linear PCM the voice agent speaks. Both directions run
// at 8kHz so no resampling is involved.
package audio

import (
	"encoding/base64"
	"errors"
)

var ErrOddPCMLength = errors.New("pcm buffer has odd length")

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawToPCM expands N companded bytes into 2N bytes of little-endian
// 16-bit signed PCM.
func MuLawToPCM(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := muLawToLinear(b)
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

// PCMToMuLaw compands 2N bytes of little-endian 16-bit signed PCM into N
// mu-law bytes. An odd-length buffer is a decode error; the caller drops the
// frame.
func PCMToMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	mulaw := make([]byte, len(pcm)/2)
	for i := 0; i < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		mulaw[i/2] = linearToMuLaw(sample)
	}
	return mulaw, nil
}

func DecodeBase64(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func muLawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias

	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func linearToMuLaw(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)

	return ^(sign | exponent<<4 | mantissa)
}
