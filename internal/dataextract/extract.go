// Package dataextract converts tabular device exports into telemetry logs.
package dataextract

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"batsoc/internal/telemetry"
)

// TelemetryOptions names the CSV columns holding each reading. A negative
// index with an empty name means the column is absent and reads as zero.
type TelemetryOptions struct {
	HasHeader bool

	BatteryColumnName   string
	BatteryColumnIndex  int
	LDOColumnName       string
	LDOColumnIndex      int
	PressureColumnName  string
	PressureColumnIndex int
	PulsesColumnName    string
	PulsesColumnIndex   int
	TimeColumnName      string
	TimeColumnIndex     int
}

// DefaultTelemetryOptions matches the column names of the device log.
func DefaultTelemetryOptions() TelemetryOptions {
	return TelemetryOptions{
		HasHeader:           true,
		BatteryColumnName:   "battery_mv",
		BatteryColumnIndex:  -1,
		LDOColumnName:       "ldo_inp_mv",
		LDOColumnIndex:      -1,
		PressureColumnName:  "pressure_mv",
		PressureColumnIndex: -1,
		PulsesColumnName:    "n_pulses",
		PulsesColumnIndex:   -1,
		TimeColumnName:      "time_sec",
		TimeColumnIndex:     -1,
	}
}

type column struct {
	field string
	name  string
	index int
}

// ExtractTelemetryCSV reads device readings from CSV. The battery and time
// columns are required; blank rows are skipped.
func ExtractTelemetryCSV(in io.Reader, opts TelemetryOptions) ([]telemetry.Sample, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	columns := []*column{
		{field: "battery", name: opts.BatteryColumnName, index: opts.BatteryColumnIndex},
		{field: "ldo", name: opts.LDOColumnName, index: opts.LDOColumnIndex},
		{field: "pressure", name: opts.PressureColumnName, index: opts.PressureColumnIndex},
		{field: "pulses", name: opts.PulsesColumnName, index: opts.PulsesColumnIndex},
		{field: "time", name: opts.TimeColumnName, index: opts.TimeColumnIndex},
	}
	battery, ldo, pressure, pulses, timeCol := columns[0], columns[1], columns[2], columns[3], columns[4]

	row := 0
	if opts.HasHeader {
		header, err := reader.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read telemetry header: %w", err)
		}
		row++
		for _, c := range columns {
			if strings.TrimSpace(c.name) == "" {
				continue
			}
			idx, err := columnIndexByName(header, c.name)
			if err != nil {
				if c == battery || c == timeCol {
					return nil, err
				}
				idx = -1
			}
			c.index = idx
		}
	}
	if battery.index < 0 || timeCol.index < 0 {
		return nil, fmt.Errorf("telemetry csv requires battery and time columns")
	}

	samples := make([]telemetry.Sample, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read telemetry row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}

		var sample telemetry.Sample
		if sample.BatteryMilliVolts, err = parseUint16Field(record, battery, row); err != nil {
			return nil, err
		}
		if sample.LDOInputMilliVolts, err = parseUint16Field(record, ldo, row); err != nil {
			return nil, err
		}
		if sample.PressureMilliVolts, err = parseUint16Field(record, pressure, row); err != nil {
			return nil, err
		}
		if sample.PulseCount, err = parseUint16Field(record, pulses, row); err != nil {
			return nil, err
		}
		seconds, err := parseFloatField(record, timeCol, row)
		if err != nil {
			return nil, err
		}
		if seconds < 0 {
			return nil, fmt.Errorf("telemetry row %d time must be >= 0", row)
		}
		if seconds >= math.MaxUint64 {
			return nil, fmt.Errorf("telemetry time row %d out of range: %v", row, seconds)
		}
		sample.TimestampSeconds = uint64(seconds)
		samples = append(samples, sample)
	}
	return samples, nil
}

func parseFloatField(record []string, c *column, row int) (float64, error) {
	if c.index < 0 {
		return 0, nil
	}
	if c.index >= len(record) {
		return 0, fmt.Errorf("telemetry row %d missing %s column index %d", row, c.field, c.index)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[c.index]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse telemetry %s row %d: %w", c.field, row, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("telemetry %s row %d out of range: %v", c.field, row, value)
	}
	return value, nil
}

func parseUint16Field(record []string, c *column, row int) (uint16, error) {
	value, err := parseFloatField(record, c, row)
	if err != nil {
		return 0, err
	}
	value = math.Round(value)
	if value < 0 || value > math.MaxUint16 {
		return 0, fmt.Errorf("telemetry %s row %d out of range: %v", c.field, row, value)
	}
	return uint16(value), nil
}

func columnIndexByName(header []string, name string) (int, error) {
	want := strings.TrimSpace(strings.ToLower(name))
	for i, field := range header {
		if strings.ToLower(strings.TrimSpace(field)) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("csv column not found: %s", name)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
