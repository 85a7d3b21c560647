package health

import "testing"

func TestIsHealthyFlipsAtThreshold(t *testing.T) {
	m := NewMonitor(5)

	if !m.IsHealthy(DepProfileProvider) {
		t.Fatal("unknown dependency must start healthy")
	}

	for i := 0; i < 4; i++ {
		m.RecordFailure(DepProfileProvider)
	}
	if !m.IsHealthy(DepProfileProvider) {
		t.Error("4 consecutive failures must still be healthy at threshold 5")
	}

	m.RecordFailure(DepProfileProvider)
	if m.IsHealthy(DepProfileProvider) {
		t.Error("5 consecutive failures must be unhealthy at threshold 5")
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	m := NewMonitor(3)

	m.RecordFailure(DepPublisher)
	m.RecordFailure(DepPublisher)
	m.RecordSuccess(DepPublisher)
	m.RecordFailure(DepPublisher)

	if !m.IsHealthy(DepPublisher) {
		t.Error("success must reset the consecutive-failure counter")
	}
	if got := m.Score(DepPublisher); got != 67 {
		t.Errorf("expected score 67 after one failure, got %d", got)
	}
}

func TestScoreDegradesLinearly(t *testing.T) {
	m := NewMonitor(5)

	want := []int{100, 80, 60, 40, 20, 0, 0}
	for i, w := range want {
		if got := m.Score(DepMediaStore); got != w {
			t.Errorf("after %d failures: score = %d, want %d", i, got, w)
		}
		m.RecordFailure(DepMediaStore)
	}
}

func TestResetClearsCounter(t *testing.T) {
	m := NewMonitor(2)

	m.RecordFailure(DepProfileProvider)
	m.RecordFailure(DepProfileProvider)
	if m.IsHealthy(DepProfileProvider) {
		t.Fatal("expected dependency to be unhealthy")
	}

	m.Reset(DepProfileProvider)
	if !m.IsHealthy(DepProfileProvider) {
		t.Error("reset must restore the dependency to healthy")
	}
	if got := m.Score(DepProfileProvider); got != 100 {
		t.Errorf("expected score 100 after reset, got %d", got)
	}
}

func TestScoresSnapshot(t *testing.T) {
	m := NewMonitor(5)

	m.RecordFailure(DepPublisher)
	m.RecordSuccess(DepMediaStore)

	scores := m.Scores()
	if scores[DepPublisher] != 80 {
		t.Errorf("publisher score = %d, want 80", scores[DepPublisher])
	}
	if scores[DepMediaStore] != 100 {
		t.Errorf("media-store score = %d, want 100", scores[DepMediaStore])
	}
}
