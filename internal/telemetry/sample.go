package telemetry

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Sample is one device reading as published by the firmware.
type Sample struct {
	BatteryMilliVolts  uint16
	LDOInputMilliVolts uint16
	PressureMilliVolts uint16
	PulseCount         uint16
	TimestampSeconds   uint64
}

type adcState struct {
	BatteryMV  uint16 `json:"battery_mv"`
	LDOInputMV uint16 `json:"ldo_inp_mv"`
	PressureMV uint16 `json:"pressure_mv"`
}

// deviceState is the JSON layout of a device log entry.
type deviceState struct {
	ADC     *adcState `json:"adc_state,omitempty"`
	Pulses  uint16    `json:"n_pulses"`
	TimeSec *uint64   `json:"time_sec,omitempty"`
}

func (s Sample) MarshalJSON() ([]byte, error) {
	ts := s.TimestampSeconds
	return json.Marshal(deviceState{
		ADC: &adcState{
			BatteryMV:  s.BatteryMilliVolts,
			LDOInputMV: s.LDOInputMilliVolts,
			PressureMV: s.PressureMilliVolts,
		},
		Pulses:  s.PulseCount,
		TimeSec: &ts,
	})
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var state deviceState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.ADC == nil {
		return ErrMissingADCState
	}
	*s = sampleFromState(state)
	return nil
}

func sampleFromState(state deviceState) Sample {
	out := Sample{PulseCount: state.Pulses}
	if state.ADC != nil {
		out.BatteryMilliVolts = state.ADC.BatteryMV
		out.LDOInputMilliVolts = state.ADC.LDOInputMV
		out.PressureMilliVolts = state.ADC.PressureMV
	}
	if state.TimeSec != nil {
		out.TimestampSeconds = *state.TimeSec
	}
	return out
}

// ErrMissingADCState is returned when a log entry carries no ADC readings.
var ErrMissingADCState = errors.New("telemetry entry has no adc_state")

// Decode reads a JSON array of device log entries. Entries without an
// adc_state object are skipped.
func Decode(r io.Reader) ([]Sample, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode telemetry log")
	}

	samples := make([]Sample, 0, len(raw))
	for i, entry := range raw {
		var state deviceState
		if err := json.Unmarshal(entry, &state); err != nil {
			return nil, errors.Wrapf(err, "decode telemetry entry %d", i)
		}
		if state.ADC == nil {
			continue
		}
		samples = append(samples, sampleFromState(state))
	}
	return samples, nil
}

// Encode writes samples as an indented JSON array in the device log layout.
func Encode(w io.Writer, samples []Sample) error {
	if samples == nil {
		samples = []Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(samples), "encode telemetry log")
}

func LoadFile(path string) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open telemetry log")
	}
	defer file.Close()

	samples, err := Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return samples, nil
}

func SaveFile(path string, samples []Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create telemetry log")
	}
	if err := Encode(file, samples); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "close telemetry log")
}
