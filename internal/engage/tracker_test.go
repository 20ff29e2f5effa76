package engage

import "testing"

func TestScriptedTracker_ReplayAndRewind(t *testing.T) {
	tr := NewScriptedTracker(
		[]StudentDetection{{ID: "a"}, {ID: "b"}},
		[]StudentDetection{{ID: "a"}},
	)

	first, err := tr.DetectAndTrack(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("frame 1: %d detections, want 2", len(first))
	}

	second, err := tr.DetectAndTrack(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || second[0].ID != "a" {
		t.Fatalf("frame 2 = %+v, want one detection for a", second)
	}

	// Past the end of the script.
	third, err := tr.DetectAndTrack(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 0 {
		t.Errorf("past-end frame returned %d detections, want 0", len(third))
	}

	tr.Reset()
	again, err := tr.DetectAndTrack(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 2 {
		t.Errorf("after reset: %d detections, want 2", len(again))
	}
}

func TestScriptedTracker_AssignsMissingIDs(t *testing.T) {
	tr := NewScriptedTracker([]StudentDetection{{CenterX: 0.5}})
	dets, err := tr.DetectAndTrack(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 || dets[0].ID == "" {
		t.Errorf("detection without ID was not assigned one: %+v", dets)
	}

	tr.Reset()
	again, _ := tr.DetectAndTrack(nil)
	if again[0].ID != dets[0].ID {
		t.Errorf("assigned ID changed across replays: %s vs %s", dets[0].ID, again[0].ID)
	}
}
