// Package model defines the versioned binary model format: an operator graph
// with int8 weights, compiled into the firmware and parsed once at startup.
package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SchemaVersion is the graph schema this runtime executes. A blob is only
// accepted when its version is exactly equal.
const SchemaVersion uint32 = 3

const headerSize = 8

var magic = [4]byte{'E', 'C', 'N', 'N'}

var (
	ErrBadMagic        = errors.New("model: not a model blob")
	ErrVersionMismatch = errors.New("model: schema version mismatch")
	ErrCorrupt         = errors.New("model: corrupt graph")
)

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Version reads the schema version of a blob without decoding the graph.
func Version(blob []byte) (uint32, error) {
	if len(blob) < headerSize || !bytes.Equal(blob[:4], magic[:]) {
		return 0, ErrBadMagic
	}
	return binary.LittleEndian.Uint32(blob[4:headerSize]), nil
}

// Parse decodes and validates a blob.
func Parse(blob []byte) (*Graph, error) {
	v, err := Version(blob)
	if err != nil {
		return nil, err
	}
	if v != SchemaVersion {
		return nil, fmt.Errorf("%w: blob has %d, runtime expects %d", ErrVersionMismatch, v, SchemaVersion)
	}
	var g Graph
	if err := decMode.Unmarshal(blob[headerSize:], &g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Encode writes g with the current schema version.
func Encode(g *Graph) ([]byte, error) {
	return EncodeVersion(g, SchemaVersion)
}

// EncodeVersion writes g tagged with an explicit schema version.
func EncodeVersion(g *Graph, version uint32) ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	body, err := cbor.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("model: encode graph: %w", err)
	}
	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, magic[:])
	binary.LittleEndian.PutUint32(out[4:], version)
	return append(out, body...), nil
}
