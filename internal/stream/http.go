package stream

import (
	"encoding/binary"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/audio"
)

// HTTPHandler serves the monitor mix as a chunked WAV stream. The header
// carries 0xFFFFFFFF chunk sizes, the conventional marker for a stream of
// unknown length, so ordinary audio players can play it as it arrives.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         *zap.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{broadcaster: b, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if _, err := w.Write(streamingWAVHeader()); err != nil {
		return
	}
	flusher.Flush()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Info("monitor listener connected",
		zap.Int("total", h.broadcaster.ListenerCount()))
	defer h.log.Info("monitor listener disconnected")

	// Pace output at one frame per 20ms, substituting silence when no
	// clip has been rendered recently, so players never stall.
	silence := make([]int16, audio.MonitorFrameSize)
	ticker := time.NewTicker(audio.MonitorFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.done:
			return
		case <-ticker.C:
			frame := silence
			select {
			case f, ok := <-listener.C:
				if !ok {
					return
				}
				frame = f
			default:
			}
			if _, err := w.Write(frameToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// streamingWAVHeader is a 44-byte mono 16-bit header at the monitor rate
// with unknown-length chunk sizes.
func streamingWAVHeader() []byte {
	const (
		channels      = 1
		bitsPerSample = 16
		sampleRate    = audio.MonitorSampleRate
		byteRate      = sampleRate * channels * bitsPerSample / 8
		blockAlign    = channels * bitsPerSample / 8
	)

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 0xFFFFFFFF)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0xFFFFFFFF)
	return hdr[:]
}

func frameToBytes(frame []int16) []byte {
	buf := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
