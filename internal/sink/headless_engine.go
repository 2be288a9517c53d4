//go:build headless

package sink

// NewEngine returns the headless engine when built without audio support.
func NewEngine(sampleRate int) (Engine, error) {
	return NewHeadlessEngine(sampleRate), nil
}
