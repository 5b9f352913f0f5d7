package dataextract

import (
	"strings"
	"testing"

	"batsoc/internal/telemetry"
)

func TestExtractTelemetryCSVByHeaderName(t *testing.T) {
	in := strings.NewReader("time_sec,battery_mv,ldo_inp_mv,pressure_mv,n_pulses\n0,4100,3980,21,0\n\n30,4080.4,3960,22,1\n")
	samples, err := ExtractTelemetryCSV(in, DefaultTelemetryOptions())
	if err != nil {
		t.Fatalf("extract telemetry: %v", err)
	}
	want := []telemetry.Sample{
		{BatteryMilliVolts: 4100, LDOInputMilliVolts: 3980, PressureMilliVolts: 21, PulseCount: 0, TimestampSeconds: 0},
		{BatteryMilliVolts: 4080, LDOInputMilliVolts: 3960, PressureMilliVolts: 22, PulseCount: 1, TimestampSeconds: 30},
	}
	if len(samples) != len(want) {
		t.Fatalf("unexpected sample count: got=%d want=%d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: got=%+v want=%+v", i, samples[i], want[i])
		}
	}
}

func TestExtractTelemetryCSVOptionalColumnsMissing(t *testing.T) {
	in := strings.NewReader("Battery_MV,time_sec\n3900,10\n")
	samples, err := ExtractTelemetryCSV(in, DefaultTelemetryOptions())
	if err != nil {
		t.Fatalf("extract telemetry: %v", err)
	}
	if len(samples) != 1 || samples[0].BatteryMilliVolts != 3900 || samples[0].LDOInputMilliVolts != 0 || samples[0].TimestampSeconds != 10 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestExtractTelemetryCSVByIndex(t *testing.T) {
	in := strings.NewReader("4000,3880,5\n")
	samples, err := ExtractTelemetryCSV(in, TelemetryOptions{
		BatteryColumnIndex:  0,
		LDOColumnIndex:      1,
		PressureColumnIndex: -1,
		PulsesColumnIndex:   -1,
		TimeColumnIndex:     2,
	})
	if err != nil {
		t.Fatalf("extract telemetry: %v", err)
	}
	if len(samples) != 1 || samples[0].LDOInputMilliVolts != 3880 || samples[0].TimestampSeconds != 5 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestExtractTelemetryCSVErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "missing battery column", in: "time_sec\n1\n"},
		{name: "missing time column", in: "battery_mv\n4000\n"},
		{name: "bad number", in: "battery_mv,time_sec\nabc,1\n"},
		{name: "out of range", in: "battery_mv,time_sec\n70000,1\n"},
		{name: "negative time", in: "battery_mv,time_sec\n4000,-1\n"},
		{name: "short row", in: "battery_mv,time_sec\n4000\n"},
		{name: "nan battery", in: "battery_mv,ldo_inp_mv,time_sec\nNaN,3900,10\n"},
		{name: "inf ldo", in: "battery_mv,ldo_inp_mv,time_sec\n4000,+Inf,10\n"},
		{name: "nan time", in: "battery_mv,ldo_inp_mv,time_sec\n4000,3900,NaN\n"},
		{name: "inf time", in: "battery_mv,time_sec\n4000,Inf\n"},
		{name: "huge time", in: "battery_mv,ldo_inp_mv,time_sec\n4000,3900,1e30\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ExtractTelemetryCSV(strings.NewReader(tc.in), DefaultTelemetryOptions()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExtractTelemetryCSVEmptyInput(t *testing.T) {
	samples, err := ExtractTelemetryCSV(strings.NewReader(""), DefaultTelemetryOptions())
	if err != nil || len(samples) != 0 {
		t.Fatalf("expected no samples, got %+v err=%v", samples, err)
	}
}
