package models

import "testing"

// TestNewTemporalMask verifies that a fresh mask starts with every frame valid
func TestNewTemporalMask(t *testing.T) {
	mask := NewTemporalMask(5)

	if mask.Len() != 5 {
		t.Errorf("Expected length 5, got %d", mask.Len())
	}
	if mask.NumValid() != 5 {
		t.Errorf("Expected 5 valid frames, got %d", mask.NumValid())
	}
	if mask.NumOutliers() != 0 {
		t.Errorf("Expected 0 outliers, got %d", mask.NumOutliers())
	}
	if mask.HasOutliers() {
		t.Error("Fresh mask should not report outliers")
	}
	if mask.DummyRemoved != 0 {
		t.Errorf("Expected 0 dummy frames removed, got %d", mask.DummyRemoved)
	}
}

// TestMarkOutlier verifies outlier marking and the index bookkeeping around it
func TestMarkOutlier(t *testing.T) {
	mask := NewTemporalMask(6)

	if err := mask.MarkOutlier(1); err != nil {
		t.Fatalf("MarkOutlier(1) failed: %v", err)
	}
	if err := mask.MarkOutlier(4); err != nil {
		t.Fatalf("MarkOutlier(4) failed: %v", err)
	}
	// marking twice keeps the frame marked
	if err := mask.MarkOutlier(4); err != nil {
		t.Fatalf("Repeated MarkOutlier(4) failed: %v", err)
	}

	if mask.NumOutliers() != 2 {
		t.Errorf("Expected 2 outliers, got %d", mask.NumOutliers())
	}
	if mask.NumValid() != 4 {
		t.Errorf("Expected 4 valid frames, got %d", mask.NumValid())
	}

	valid := mask.ValidIndices()
	wantValid := []int{0, 2, 3, 5}
	if len(valid) != len(wantValid) {
		t.Fatalf("Expected %d valid indices, got %d", len(wantValid), len(valid))
	}
	for i, idx := range wantValid {
		if valid[i] != idx {
			t.Errorf("Valid index %d: expected %d, got %d", i, idx, valid[i])
		}
	}

	outliers := mask.OutlierIndices()
	if len(outliers) != 2 || outliers[0] != 1 || outliers[1] != 4 {
		t.Errorf("Expected outlier indices [1 4], got %v", outliers)
	}
}

// TestMarkOutlierOutOfRange verifies that invalid frame indices are rejected
func TestMarkOutlierOutOfRange(t *testing.T) {
	mask := NewTemporalMask(3)

	if err := mask.MarkOutlier(-1); err == nil {
		t.Error("Expected error for negative index")
	}
	if err := mask.MarkOutlier(3); err == nil {
		t.Error("Expected error for index past the end")
	}
}

// TestMaskClone verifies that clones are independent of the original
func TestMaskClone(t *testing.T) {
	mask := NewTemporalMask(4)
	mask.DummyRemoved = 2
	if err := mask.MarkOutlier(1); err != nil {
		t.Fatalf("MarkOutlier failed: %v", err)
	}

	clone := mask.Clone()
	if clone.DummyRemoved != 2 {
		t.Errorf("Expected clone to carry DummyRemoved 2, got %d", clone.DummyRemoved)
	}
	if err := clone.MarkOutlier(3); err != nil {
		t.Fatalf("MarkOutlier on clone failed: %v", err)
	}

	if mask.NumOutliers() != 1 {
		t.Errorf("Original mask changed by clone edit: %d outliers", mask.NumOutliers())
	}
	if clone.NumOutliers() != 2 {
		t.Errorf("Expected 2 outliers on clone, got %d", clone.NumOutliers())
	}
}

// TestCheckAligned verifies frame-count alignment checks
func TestCheckAligned(t *testing.T) {
	mask := NewTemporalMask(10)

	if err := mask.CheckAligned(10, "test matrix"); err != nil {
		t.Errorf("Expected aligned mask to pass, got %v", err)
	}
	if err := mask.CheckAligned(9, "test matrix"); err == nil {
		t.Error("Expected misaligned mask to fail")
	}
}
