package bybit

import "testing"

func TestParseKlineRows(t *testing.T) {
	// REST rows arrive newest first
	raw := [][]string{
		{"2000", "2", "3", "1", "2.5", "10", "25"},
		{"1000", "1", "2", "0.5", "1.5", "20", "30"},
	}

	out := ParseKlineRows(Interval1Min, raw)
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}

	// output is ascending by start time
	if out[0].Start != 1000 || out[1].Start != 2000 {
		t.Errorf("starts = %d,%d, want 1000,2000", out[0].Start, out[1].Start)
	}
	if out[0].Open != "1" || out[0].Close != "1.5" || out[0].Volume != "20" {
		t.Errorf("first entry fields wrong: %+v", out[0])
	}
	if !out[0].Confirm {
		t.Error("historical REST candles should be confirmed")
	}
	if out[1].Confirm {
		t.Error("the newest REST row is still forming and must not be confirmed")
	}
	if out[0].Interval != "1" {
		t.Errorf("interval = %q, want \"1\"", out[0].Interval)
	}
}

func TestParseKlineRowsSkipsInvalid(t *testing.T) {
	raw := [][]string{
		{"2000", "2", "3", "1", "2.5", "10", "25"},
		{"not-a-number", "1", "2", "0.5", "1.5", "20", "30"},
		{"incomplete"},
	}

	out := ParseKlineRows(Interval1Min, raw)
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1 (invalid rows skipped)", len(out))
	}
	if out[0].Start != 2000 {
		t.Errorf("start = %d, want 2000", out[0].Start)
	}
}
