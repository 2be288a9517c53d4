package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/promptdj/promptdj/internal/audio"
)

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus monitoring.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	log         *zap.Logger
	mu          sync.Mutex
	peers       []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, log *zap.Logger) *WebRTCHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebRTCHandler{broadcaster: b, log: log}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"promptdj-monitor",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	h.log.Info("webrtc peer connected", zap.Int("total", h.PeerCount()))

	// WriteSample on an unbound track reports no error, so the streaming
	// goroutine cannot detect disconnects on its own; it gets an explicit
	// stop signal instead.
	stop := make(chan struct{})
	var stopOnce sync.Once
	go h.streamToPeer(audioTrack, stop)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			stopOnce.Do(func() { close(stop) })
			h.removePeer(pc)
			pc.Close()
			h.log.Info("webrtc peer disconnected", zap.Int("remaining", h.PeerCount()))
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	// Opus requires one of its supported rates, which is why the monitor
	// path runs at 48kHz rather than the device rate.
	enc, err := opus.NewEncoder(audio.MonitorSampleRate, 1, opus.AppAudio)
	if err != nil {
		h.log.Error("opus encoder init failed", zap.Error(err))
		return
	}
	enc.SetBitrate(96000)

	opusBuf := make([]byte, 4000)
	silence := make([]int16, audio.MonitorFrameSize)

	// WebRTC tracks need a steady sample clock, so silence is encoded
	// whenever no rendered frame is pending.
	ticker := time.NewTicker(audio.MonitorFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
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
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.log.Warn("opus encode failed", zap.Error(err))
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.MonitorFrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return
		}
	}
}
