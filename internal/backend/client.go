// Package backend is the transport client for the PromptDJ generation
// service: it requests melody/drum generation over WebSocket, downloads the
// rendered audio the service announces, and hands decoded PCM to the
// playback side. It is the only component that talks to the network.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/media"
)

// AudioHandler receives each decoded clip: raw PCM16LE bytes, the interleaved
// channel count and sample rate of that buffer, and an owner hint naming the
// producer role the clip was generated for.
type AudioHandler func(pcm []byte, channels, sampleRate int, ownerHint string)

// Option configures a Client.
type Option func(*Client)

// WithClientID overrides the generated client id.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithHTTPClient overrides the client used to download rendered audio.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxBackoff caps the reconnect backoff.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// Client is a WebSocket client for the generation service. Create it with
// NewClient, register a handler, then drive it with Run.
type Client struct {
	baseURL    string
	clientID   string
	log        *zap.Logger
	http       *http.Client
	maxBackoff time.Duration
	onAudio    AudioHandler

	mu    sync.Mutex
	conn  *websocket.Conn
	hints []string // pending owner hints for single-track audio_ready replies
}

// NewClient creates a client for the service at baseURL
// (e.g. "ws://127.0.0.1:8123").
func NewClient(baseURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL:    baseURL,
		clientID:   "spectacles-" + uuid.New().String()[:8],
		log:        log,
		http:       &http.Client{Timeout: 30 * time.Second},
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnAudioReady registers the handler invoked for every delivered clip. Must
// be called before Run.
func (c *Client) OnAudioReady(h AudioHandler) { c.onAudio = h }

// ClientID returns the id used in the WebSocket path.
func (c *Client) ClientID() string { return c.clientID }

// Run connects and serves messages until ctx is cancelled, reconnecting with
// doubled backoff after each failure. Generation failures are logged, never
// fatal: losing the backend only pauses new content.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("backend connection lost",
			zap.Error(err),
			zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// serve dials, then reads messages until the connection drops.
func (c *Client) serve(ctx context.Context) error {
	url := fmt.Sprintf("%s/ws/spectacles/%s", c.baseURL, c.clientID)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.hints = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	// Unblock ReadJSON when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handle(&msg)
	}
}

func (c *Client) handle(msg *serverMessage) {
	switch msg.Type {
	case msgConnected:
		c.log.Info("backend connected", zap.String("client_id", msg.ClientID))
	case msgStatus:
		c.log.Debug("backend status", zap.String("message", msg.Message))
	case msgParamsUpdated, msgPong:
		// Nothing to do.
	case msgAudioReady:
		c.handleAudioReady(msg)
	case msgError:
		c.log.Warn("backend error",
			zap.String("message", msg.Message),
			zap.String("code", msg.Code))
		// A failed generation consumes its pending hint.
		c.popHint()
	default:
		c.log.Debug("unknown backend message", zap.String("type", msg.Type))
	}
}

func (c *Client) handleAudioReady(msg *serverMessage) {
	if msg.Format == "both" {
		if msg.Melody != nil {
			c.deliver(msg.Melody.URL, "", HintMelody)
		}
		if msg.Drums != nil {
			c.deliver(msg.Drums.URL, "", HintDrums)
		}
		return
	}
	c.deliver(msg.URL, msg.Format, c.popHint())
}

// deliver downloads a rendered track, decodes it, and invokes the handler.
func (c *Client) deliver(url, format, hint string) {
	if c.onAudio == nil || url == "" {
		return
	}

	data, err := c.fetchAudio(url)
	if err != nil {
		c.log.Warn("audio download failed", zap.String("url", url), zap.Error(err))
		return
	}

	if format == "" || format == "both" {
		format = media.Sniff(data)
	}
	clip, err := media.Decode(data, format)
	if err != nil {
		c.log.Warn("audio decode failed",
			zap.String("url", url),
			zap.String("format", format),
			zap.Error(err))
		return
	}

	c.log.Info("audio ready",
		zap.String("owner", hint),
		zap.Int("bytes", len(clip.PCM)),
		zap.Int("sample_rate", clip.SampleRate),
		zap.Int("channels", clip.Channels))
	c.onAudio(clip.PCM, clip.Channels, clip.SampleRate, hint)
}

func (c *Client) fetchAudio(url string) ([]byte, error) {
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// --- outbound actions ---

// Ping sends a keepalive.
func (c *Client) Ping() error {
	return c.send(request{Action: actionPing})
}

// UpdateParams stores generation parameters server-side for later requests.
func (c *Client) UpdateParams(p Params) error {
	return c.send(request{Action: actionUpdateParams, Params: &p})
}

// GenerateMelody requests a melody track; the resulting clip arrives on the
// audio handler with the melody hint.
func (c *Client) GenerateMelody(p Params) error {
	return c.sendExpecting(HintMelody, request{Action: actionGenerateMelody, Params: &p})
}

// GenerateDrums requests a drum track.
func (c *Client) GenerateDrums(p Params) error {
	return c.sendExpecting(HintDrums, request{Action: actionGenerateDrums, Params: &p})
}

// GenerateBoth requests melody and drums in one round trip; the reply
// carries both tracks with their own hints.
func (c *Client) GenerateBoth(p Params) error {
	return c.send(request{Action: actionGenerateBoth, Params: &p})
}

func (c *Client) sendExpecting(hint string, req request) error {
	c.mu.Lock()
	c.hints = append(c.hints, hint)
	c.mu.Unlock()

	if err := c.send(req); err != nil {
		c.popHint()
		return err
	}
	return nil
}

func (c *Client) send(req request) error {
	// gorilla permits one concurrent writer; the lock also covers conn.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(req)
}

// popHint consumes the oldest pending hint; single-track replies arrive in
// request order because the server processes actions sequentially per
// client.
func (c *Client) popHint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hints) == 0 {
		return HintMelody
	}
	h := c.hints[0]
	c.hints = c.hints[1:]
	return h
}
