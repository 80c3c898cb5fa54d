package gateapi

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/kubegate/kubegate/version"
)

// ProbeStats summarizes readiness probing so far.
type ProbeStats struct {
	Attempts   int    `json:"attempts"`
	Errors     int    `json:"errors"`
	LastStatus string `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time view of gate progress, served as-is on
// /status.
type Snapshot struct {
	GateID    string     `json:"gate_id"`
	RunUUID   string     `json:"run_uuid,omitempty"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	Phase     string     `json:"phase,omitempty"`
	Ready     bool       `json:"ready"`
	Probes    ProbeStats `json:"probes"`
	Tags      []string   `json:"tags,omitempty"`
}

// State holds the current Snapshot. Writers (the gate goroutine and the
// waiter's observer) swap in whole snapshots, so readers never see a
// half-updated view and never block a probe.
type State struct {
	snap atomic.Pointer[Snapshot]
}

func NewState(gateID string) *State {
	s := &State{}
	s.snap.Store(&Snapshot{
		GateID:    gateID,
		Version:   version.Version(),
		StartedAt: time.Now(),
	})
	return s
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	return *s.snap.Load()
}

func (s *State) update(f func(*Snapshot)) {
	for {
		old := s.snap.Load()
		next := *old
		next.Tags = slices.Clone(old.Tags)
		f(&next)
		if s.snap.CompareAndSwap(old, &next) {
			return
		}
	}
}

// SetPhase records the phase the gate is currently running.
func (s *State) SetPhase(phase string) {
	s.update(func(snap *Snapshot) { snap.Phase = phase })
}

// SetRunUUID records the unique id of this gate invocation. Gate ids can
// repeat across retries of the same CI step, run uuids cannot.
func (s *State) SetRunUUID(runUUID string) {
	s.update(func(snap *Snapshot) { snap.RunUUID = runUUID })
}

// SetTags records the host tags gathered in the environment phase.
func (s *State) SetTags(tags []string) {
	s.update(func(snap *Snapshot) { snap.Tags = slices.Clone(tags) })
}

// SetReady marks the gate ready; /readyz flips to 200 from here on.
func (s *State) SetReady() {
	s.update(func(snap *Snapshot) { snap.Ready = true })
}

// ObserveProbe records one probe outcome. Its signature matches the
// readiness waiter's observer hook.
func (s *State) ObserveProbe(status string, err error) {
	s.update(func(snap *Snapshot) {
		snap.Probes.Attempts++
		if err != nil {
			snap.Probes.Errors++
			snap.Probes.LastError = err.Error()
			return
		}
		snap.Probes.LastStatus = status
	})
}
