package models

import "fmt"

// FrameLabel classifies a single frame of a run.
type FrameLabel uint8

const (
	// FrameValid marks a usable, low-motion frame.
	FrameValid FrameLabel = iota

	// FrameMotionOutlier marks a frame whose framewise displacement exceeded
	// the configured threshold.
	FrameMotionOutlier
)

// TemporalMask records the per-frame validity classification of one run.
//
// The mask is created once dummy scans are known and only ever extended:
// designated stages add outlier labels, but the mask is never shortened.
// Dummy frames are not represented as labels because they are permanently
// removed from all matrices at trim time; DummyRemoved records how many
// were dropped.
type TemporalMask struct {
	Labels       []FrameLabel
	DummyRemoved int
}

// NewTemporalMask creates a mask of n valid frames.
func NewTemporalMask(n int) *TemporalMask {
	return &TemporalMask{Labels: make([]FrameLabel, n)}
}

// Len returns the current frame count.
func (m *TemporalMask) Len() int { return len(m.Labels) }

// NumValid returns the number of frames labeled valid.
func (m *TemporalMask) NumValid() int {
	n := 0
	for _, l := range m.Labels {
		if l == FrameValid {
			n++
		}
	}
	return n
}

// NumOutliers returns the number of frames labeled motion-outlier.
func (m *TemporalMask) NumOutliers() int { return m.Len() - m.NumValid() }

// HasOutliers reports whether any frame is labeled motion-outlier.
func (m *TemporalMask) HasOutliers() bool {
	for _, l := range m.Labels {
		if l == FrameMotionOutlier {
			return true
		}
	}
	return false
}

// ValidIndices returns the frame indices labeled valid, in time order.
func (m *TemporalMask) ValidIndices() []int {
	idx := make([]int, 0, m.Len())
	for i, l := range m.Labels {
		if l == FrameValid {
			idx = append(idx, i)
		}
	}
	return idx
}

// OutlierIndices returns the frame indices labeled motion-outlier, in time
// order.
func (m *TemporalMask) OutlierIndices() []int {
	var idx []int
	for i, l := range m.Labels {
		if l == FrameMotionOutlier {
			idx = append(idx, i)
		}
	}
	return idx
}

// MarkOutlier labels frame i as a motion outlier. Labels are extend-only:
// a frame already marked stays marked.
func (m *TemporalMask) MarkOutlier(i int) error {
	if i < 0 || i >= m.Len() {
		return fmt.Errorf("frame index %d out of range [0, %d)", i, m.Len())
	}
	m.Labels[i] = FrameMotionOutlier
	return nil
}

// Clone returns a deep copy of the mask.
func (m *TemporalMask) Clone() *TemporalMask {
	labels := make([]FrameLabel, len(m.Labels))
	copy(labels, m.Labels)
	return &TemporalMask{Labels: labels, DummyRemoved: m.DummyRemoved}
}

// CheckAligned verifies that the mask length matches the row count of a
// time-aligned matrix. Stages call this at their boundaries.
func (m *TemporalMask) CheckAligned(frames int, what string) error {
	if m.Len() != frames {
		return fmt.Errorf("temporal mask has %d frames but %s has %d rows", m.Len(), what, frames)
	}
	return nil
}
