package field

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the only persisted and exchanged form of a mixture. It must
// round-trip losslessly through export and import.
type Snapshot struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	BandConfigs BandSet     `json:"bandConfigs"`
	Components  []Component `json:"components"`
}

// Snapshot exports the mixture state, original tuples included.
func (m *Mixture) Snapshot() *Snapshot {
	comps := make([]Component, len(m.comps))
	copy(comps, m.comps)
	return &Snapshot{
		Width:       m.W,
		Height:      m.H,
		BandConfigs: m.Bands,
		Components:  comps,
	}
}

// FromSnapshot reconstructs an independent mixture. The returned mixture
// shares no state with the snapshot's source, so concurrent searches can
// each rebuild their own copy.
func FromSnapshot(s *Snapshot) (*Mixture, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("snapshot has invalid dimensions %dx%d", s.Width, s.Height)
	}
	maxID := -1
	for i := range s.Components {
		c := &s.Components[i]
		if c.ScaleX <= 0 || c.ScaleY <= 0 {
			return nil, fmt.Errorf("component %d has non-positive scale", c.ID)
		}
		if c.Amplitude <= 0 {
			return nil, fmt.Errorf("component %d has non-positive amplitude", c.ID)
		}
		if c.Correlation <= -1 || c.Correlation >= 1 {
			return nil, fmt.Errorf("component %d has correlation outside (-1, 1)", c.ID)
		}
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	m := NewMixture(s.Width, s.Height, s.BandConfigs)
	m.comps = make([]Component, len(s.Components))
	copy(m.comps, s.Components)
	m.nextID = maxID + 1
	return m, nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot from JSON.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
