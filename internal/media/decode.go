// Package media converts rendered audio payloads fetched from the backend
// (MP3 for the glasses path, WAV otherwise) into the raw PCM16LE byte
// buffers the playback core consumes.
package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// Format keys returned by Sniff and accepted by Decode.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
	FormatPCM = "pcm" // raw, passed through untouched
)

var ErrUnknownFormat = errors.New("unknown audio format")

// Clip is a decoded payload: interleaved PCM16LE bytes plus the metadata the
// PCM decoder needs.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Decode converts a payload in the given format to a Clip. Raw PCM payloads
// pass through with the caller expected to know rate and channel count.
func Decode(data []byte, format string) (Clip, error) {
	switch format {
	case FormatMP3:
		return decodeMP3(data)
	case FormatWAV:
		return decodeWAV(data)
	case FormatPCM:
		return Clip{PCM: data}, nil
	default:
		return Clip{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Sniff guesses the payload format from its leading bytes, falling back to
// raw PCM when nothing matches.
func Sniff(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	if len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")) {
		return FormatMP3
	}
	// MPEG frame sync: 11 set bits.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	return FormatPCM
}

func decodeMP3(data []byte) (Clip, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("mp3 decode: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("mp3 read: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	return Clip{
		PCM:        pcm,
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("wav decode: not a valid file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("wav read: %w", err)
	}

	return Clip{
		PCM:        bufferToPCM16(buf),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// bufferToPCM16 normalizes whatever bit depth the file carries down to
// int16 and serializes it little-endian.
func bufferToPCM16(buf *gaudio.IntBuffer) []byte {
	shift := int(buf.SourceBitDepth) - 16
	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		if shift > 0 {
			v >>= shift
		} else if shift < 0 {
			v <<= -shift
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
