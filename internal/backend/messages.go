package backend

// Wire protocol of the generation service. Client messages carry an action
// plus generation parameters; server messages are discriminated on "type".

const (
	actionPing           = "ping"
	actionUpdateParams   = "update_params"
	actionGenerateMelody = "generate_melody"
	actionGenerateDrums  = "generate_drums"
	actionGenerateBoth   = "generate_both"
)

const (
	msgConnected     = "connected"
	msgStatus        = "status"
	msgParamsUpdated = "params_updated"
	msgAudioReady    = "audio_ready"
	msgError         = "error"
	msgPong          = "pong"
)

// Owner hints attached to delivered audio so the playback side can route
// clips to the right layer.
const (
	HintMelody   = "melody"
	HintDrums    = "drums"
	HintCombined = "combined"
)

// Params are the generation knobs understood by the service. Zero values are
// omitted so the server's stored per-client state fills the gaps.
type Params struct {
	TempoBPM  int     `json:"tempo_bpm,omitempty"`
	Bars      int     `json:"bars,omitempty"`
	Scale     string  `json:"scale,omitempty"`
	Density   float64 `json:"density,omitempty"`
	Variation float64 `json:"variation,omitempty"`
	Style     string  `json:"style,omitempty"`
	Swing     float64 `json:"swing,omitempty"`
	Seed      *int    `json:"seed,omitempty"`
}

type request struct {
	Action string  `json:"action"`
	Params *Params `json:"params,omitempty"`
}

type trackRef struct {
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
}

type serverMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	Melody    *trackRef `json:"melody"`
	Drums     *trackRef `json:"drums"`
	ClientID  string    `json:"client_id"`
}
