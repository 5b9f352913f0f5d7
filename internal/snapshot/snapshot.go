// Package snapshot encodes networks into a compact, bounded binary form.
//
// Layout, little endian:
//
//	magic "SOC1" | version byte | layer count L (uvarint)
//	L+1 layer widths (uvarint each)
//	L activation names (uvarint length + bytes)
//	for each layer: weights row-major, then biases, as float64 bits
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"batsoc/internal/nn"
)

const (
	// MaxSize is the default snapshot capacity in bytes.
	MaxSize = 1024
	Version = 1

	magic = "SOC1"
	// maxWidth bounds decoded widths so a corrupt header cannot request huge
	// allocations.
	maxWidth = 1 << 16
)

var (
	ErrCapacityExceeded = errors.New("snapshot exceeds capacity")
	ErrCorruptSnapshot  = errors.New("corrupt snapshot")
)

// Encode serializes n within MaxSize bytes.
func Encode(n *nn.Network) ([]byte, error) {
	return EncodeWithCapacity(n, MaxSize)
}

// EncodeWithCapacity serializes n, failing with ErrCapacityExceeded rather
// than truncating when the result would exceed capacity bytes.
func EncodeWithCapacity(n *nn.Network, capacity int) ([]byte, error) {
	if n == nil {
		return nil, errors.New("network is required")
	}
	sizes := n.Sizes()
	params := n.Params()

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(Version)
	buf.Write(binary.AppendUvarint(nil, uint64(len(params))))
	for _, size := range sizes {
		buf.Write(binary.AppendUvarint(nil, uint64(size)))
	}
	for _, p := range params {
		buf.Write(binary.AppendUvarint(nil, uint64(len(p.Activation))))
		buf.WriteString(p.Activation)
	}
	var word [8]byte
	for _, p := range params {
		for _, values := range [][]float64{p.Weights, p.Biases} {
			for _, v := range values {
				binary.LittleEndian.PutUint64(word[:], math.Float64bits(v))
				buf.Write(word[:])
			}
		}
	}

	if buf.Len() > capacity {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrCapacityExceeded, buf.Len(), capacity)
	}
	return buf.Bytes(), nil
}

// Decode rebuilds a network from Encode output.
func Decode(data []byte) (*nn.Network, error) {
	r := bytes.NewReader(data)

	header := make([]byte, len(magic)+1)
	if _, err := r.Read(header); err != nil || len(data) < len(header) {
		return nil, corrupt("truncated header")
	}
	if string(header[:len(magic)]) != magic {
		return nil, corrupt("bad magic %q", header[:len(magic)])
	}
	if header[len(magic)] != Version {
		return nil, corrupt("unsupported version %d", header[len(magic)])
	}

	layerCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, corrupt("read layer count: %v", err)
	}
	if layerCount == 0 || layerCount > uint64(len(data)) {
		return nil, corrupt("invalid layer count %d", layerCount)
	}

	sizes := make([]int, layerCount+1)
	for i := range sizes {
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corrupt("read width %d: %v", i, err)
		}
		if size == 0 || size > maxWidth {
			return nil, corrupt("invalid width %d at position %d", size, i)
		}
		sizes[i] = int(size)
	}

	activations := make([]string, layerCount)
	for i := range activations {
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corrupt("read activation %d: %v", i, err)
		}
		if length > uint64(r.Len()) {
			return nil, corrupt("activation %d length %d exceeds payload", i, length)
		}
		name := make([]byte, length)
		if _, err := r.Read(name); err != nil && length > 0 {
			return nil, corrupt("read activation %d: %v", i, err)
		}
		activations[i] = string(name)
	}

	want := 0
	for i := 0; i+1 < len(sizes); i++ {
		want += sizes[i]*sizes[i+1] + sizes[i+1]
	}
	if r.Len() != want*8 {
		return nil, corrupt("payload has %d bytes, topology %v needs %d", r.Len(), sizes, want*8)
	}

	var word [8]byte
	readFloats := func(count int) []float64 {
		out := make([]float64, count)
		for i := range out {
			_, _ = r.Read(word[:])
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(word[:]))
		}
		return out
	}

	layers := make([]nn.LayerParams, layerCount)
	for i := range layers {
		in, out := sizes[i], sizes[i+1]
		layers[i] = nn.LayerParams{
			In:         in,
			Out:        out,
			Weights:    readFloats(in * out),
			Biases:     readFloats(out),
			Activation: activations[i],
		}
	}

	n, err := nn.FromParams(layers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return n, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}
