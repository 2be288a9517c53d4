package layers

// Owner keys for the three producer roles known to the system. Any other
// string is an equally valid owner; these only exist so the role helpers
// below can offer a smaller call surface.
const (
	OwnerMelody   = "melody"
	OwnerDrums    = "drums"
	OwnerCombined = "combined"
)

// PlayMelody acquires the melody channel if needed and plays raw PCM16LE on
// it. All role helpers are defined purely in terms of the general pool
// operations and add no behavior of their own.
func (p *Pool) PlayMelody(data []byte, channels int) bool {
	return p.playRole(OwnerMelody, data, channels)
}

// PlayDrums acquires the drums channel if needed and plays on it.
func (p *Pool) PlayDrums(data []byte, channels int) bool {
	return p.playRole(OwnerDrums, data, channels)
}

// PlayCombined acquires the combined-mix channel if needed and plays on it.
func (p *Pool) PlayCombined(data []byte, channels int) bool {
	return p.playRole(OwnerCombined, data, channels)
}

func (p *Pool) playRole(owner string, data []byte, channels int) bool {
	if _, ok := p.Acquire(owner); !ok {
		return false
	}
	return p.PlayOwner(owner, data, channels)
}

func (p *Pool) StopMelody()   { p.StopOwner(OwnerMelody) }
func (p *Pool) StopDrums()    { p.StopOwner(OwnerDrums) }
func (p *Pool) StopCombined() { p.StopOwner(OwnerCombined) }

func (p *Pool) SetMelodyVolume(v float64)   { p.SetVolumeOwner(OwnerMelody, v) }
func (p *Pool) SetDrumsVolume(v float64)    { p.SetVolumeOwner(OwnerDrums, v) }
func (p *Pool) SetCombinedVolume(v float64) { p.SetVolumeOwner(OwnerCombined, v) }
