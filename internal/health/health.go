/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package health scores peer liveness with a phi-accrual failure
// detector for operators to watch on a dashboard. It is purely
// observational: nothing here feeds back into leader election, vote
// granting, or commit advancement, all of which remain governed
// exclusively by the term/log rules in internal/raft. A peer this
// package considers "suspect" may still be a perfectly healthy
// follower as far as Raft is concerned.
package health

import (
	"math"
	"sync"
	"time"
)

// Detector estimates the probability that a peer has crashed, based
// on the gaps between successive heartbeats from it. A large phi
// value means the elapsed silence would be very unlikely for a live
// peer given its historical heartbeat interval distribution.
type Detector struct {
	mu         sync.RWMutex
	intervals  []float64
	lastBeat   time.Time
	minSamples int
	maxSamples int
	threshold  float64
	mean       float64
	variance   float64
}

// NewDetector creates a Detector. threshold is the phi value above
// which SuspectLevel reports the peer as suspect; minSamples is the
// number of inter-heartbeat intervals (minSamples+1 heartbeats)
// required before phi produces any signal at all, and maxSamples
// bounds the sliding window of intervals kept.
func NewDetector(threshold float64, minSamples, maxSamples int) *Detector {
	return &Detector{
		intervals:  make([]float64, 0, maxSamples),
		threshold:  threshold,
		minSamples: minSamples,
		maxSamples: maxSamples,
	}
}

// DefaultDetector returns a Detector tuned for a heartbeat interval
// on the order of a Raft heartbeat tick.
func DefaultDetector() *Detector {
	return NewDetector(8, 4, 100)
}

// Heartbeat records that a heartbeat (or any message at all) was just
// received from the peer this Detector tracks.
func (d *Detector) Heartbeat() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.lastBeat.IsZero() {
		interval := now.Sub(d.lastBeat).Seconds() * 1000
		d.intervals = append(d.intervals, interval)
		if len(d.intervals) > d.maxSamples {
			d.intervals = d.intervals[1:]
		}
		d.updateStats()
	}
	d.lastBeat = now
}

func (d *Detector) updateStats() {
	if len(d.intervals) == 0 {
		return
	}
	sum := 0.0
	for _, v := range d.intervals {
		sum += v
	}
	d.mean = sum / float64(len(d.intervals))

	sumSq := 0.0
	for _, v := range d.intervals {
		diff := v - d.mean
		sumSq += diff * diff
	}
	d.variance = sumSq / float64(len(d.intervals))
}

// Phi returns the current suspicion level. It is 0 until minSamples
// intervals (minSamples+1 heartbeats) have been observed.
func (d *Detector) Phi() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.intervals) < d.minSamples {
		return 0
	}
	if d.lastBeat.IsZero() {
		return d.threshold + 1
	}
	timeSinceLast := time.Since(d.lastBeat).Seconds() * 1000
	return d.phi(timeSinceLast)
}

func (d *Detector) phi(timeSinceLast float64) float64 {
	stdDev := math.Sqrt(d.variance)
	if stdDev < 1 {
		stdDev = 1
	}
	y := (timeSinceLast - d.mean) / stdDev
	e := math.Exp(-y * (1.5976 + 0.070566*y*y))
	if timeSinceLast > d.mean {
		return -math.Log10(e / (1 + e))
	}
	return -math.Log10(1 - 1/(1+e))
}

// Suspect reports whether Phi currently exceeds this Detector's
// threshold.
func (d *Detector) Suspect() bool {
	return d.Phi() > d.threshold
}

// Monitor tracks one Detector per peer and is safe for concurrent use.
// A harness wires Monitor.Heartbeat into every inbound message receipt
// so peer liveness is scored without Raft ever consulting it.
type Monitor struct {
	mu        sync.Mutex
	detectors map[int]*Detector
	newDetector func() *Detector
}

// NewMonitor creates a Monitor that lazily builds a Detector per peer
// via newDetector (DefaultDetector when nil).
func NewMonitor(newDetector func() *Detector) *Monitor {
	if newDetector == nil {
		newDetector = DefaultDetector
	}
	return &Monitor{
		detectors:   make(map[int]*Detector),
		newDetector: newDetector,
	}
}

// Heartbeat records a heartbeat from peerID.
func (m *Monitor) Heartbeat(peerID int) {
	m.detectorFor(peerID).Heartbeat()
}

// Phi returns the current suspicion level for peerID, 0 if no
// heartbeat has ever been recorded for it.
func (m *Monitor) Phi(peerID int) float64 {
	m.mu.Lock()
	d, ok := m.detectors[peerID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return d.Phi()
}

// Suspect reports whether peerID is currently considered suspect.
func (m *Monitor) Suspect(peerID int) bool {
	m.mu.Lock()
	d, ok := m.detectors[peerID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return d.Suspect()
}

// Snapshot returns the current phi value for every peer this Monitor
// has ever heard from, keyed by peer ID.
func (m *Monitor) Snapshot() map[int]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]float64, len(m.detectors))
	for id, d := range m.detectors {
		out[id] = d.Phi()
	}
	return out
}

func (m *Monitor) detectorFor(peerID int) *Detector {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detectors[peerID]
	if !ok {
		d = m.newDetector()
		m.detectors[peerID] = d
	}
	return d
}
