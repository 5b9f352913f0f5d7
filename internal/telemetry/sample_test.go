package telemetry

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const deviceLog = `[
  {"adc_state": {"battery_mv": 4100, "ldo_inp_mv": 4050, "pressure_mv": 120}, "n_pulses": 3, "time_sec": 0},
  {"n_pulses": 4, "time_sec": 5},
  {"adc_state": {"battery_mv": 4010, "ldo_inp_mv": 3990, "pressure_mv": 118}, "n_pulses": 7, "time_sec": 10}
]`

func TestDecodeSkipsEntriesWithoutADCState(t *testing.T) {
	samples, err := Decode(strings.NewReader(deviceLog))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("unexpected sample count: got=%d want=2", len(samples))
	}
	want := Sample{BatteryMilliVolts: 4010, LDOInputMilliVolts: 3990, PressureMilliVolts: 118, PulseCount: 7, TimestampSeconds: 10}
	if samples[1] != want {
		t.Fatalf("unexpected sample: got=%+v want=%+v", samples[1], want)
	}
}

func TestDecodeRejectsMalformedLog(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"adc_state": 1}`)); err == nil {
		t.Fatal("expected decode error for non-array log")
	}
	if _, err := Decode(strings.NewReader(`[{"adc_state": {"battery_mv": -1}}]`)); err == nil {
		t.Fatal("expected decode error for negative millivolts")
	}
}

func TestSampleUnmarshalRequiresADCState(t *testing.T) {
	var sample Sample
	err := sample.UnmarshalJSON([]byte(`{"n_pulses": 1, "time_sec": 2}`))
	if !errors.Is(err, ErrMissingADCState) {
		t.Fatalf("expected ErrMissingADCState, got: %v", err)
	}
}

func TestEncodeDecodeFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	samples := []Sample{
		{BatteryMilliVolts: 4000, LDOInputMilliVolts: 3980, PressureMilliVolts: 100, PulseCount: 1, TimestampSeconds: 0},
		{BatteryMilliVolts: 3900, LDOInputMilliVolts: 3880, PressureMilliVolts: 101, PulseCount: 2, TimestampSeconds: 60},
	}
	if err := SaveFile(path, samples); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(samples) {
		t.Fatalf("unexpected sample count: got=%d want=%d", len(loaded), len(samples))
	}
	for i := range samples {
		if loaded[i] != samples[i] {
			t.Fatalf("sample %d mismatch: got=%+v want=%+v", i, loaded[i], samples[i])
		}
	}
}

func TestEncodeEmptyWritesArray(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("unexpected encoding: %q", buf.String())
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
