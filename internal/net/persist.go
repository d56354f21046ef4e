package net

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/layer"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
)

// snapshot is the gob encoded form of a network.
type snapshot struct {
	Loss      loss.Type
	Optimizer opt.Config
	BatchMode bool
	BatchSize int
	Layers    []layer.Spec
}

// Save saves the network to a file using gob encoding.
// Optimizer state is not saved; a loaded network starts with fresh state.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	if err := n.Encode(file); err != nil {
		return err
	}
	return file.Close()
}

// Load loads a network from a file written by Save.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes the network to an io.Writer using gob encoding.
func (n *Network) Encode(w io.Writer) error {
	s := snapshot{
		Loss:      n.lossType,
		Optimizer: n.OptimizerConfig(),
		BatchMode: n.batchMode,
		BatchSize: n.batchSize,
		Layers:    make([]layer.Spec, len(n.layers)),
	}
	for i, l := range n.layers {
		s.Layers[i] = layer.Describe(l)
	}
	if err := gob.NewEncoder(w).Encode(&s); err != nil {
		return errors.Wrap(err, "failed to encode network")
	}
	return nil
}

// Decode reads a network written by Encode and rebuilds it with the saved
// weights. The network has no worker pool.
func Decode(r io.Reader) (*Network, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to decode network")
	}

	layers := make([]layer.Layer, len(s.Layers))
	for i, spec := range s.Layers {
		l, err := spec.Build()
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		if tr, ok := l.(layer.Trainable); ok {
			if err := tr.SetOptimizer(s.Optimizer); err != nil {
				return nil, err
			}
		}
		layers[i] = l
	}

	n, err := New(layers, s.Loss)
	if err != nil {
		return nil, err
	}
	for i, spec := range s.Layers {
		if err := spec.Restore(layers[i]); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
	}
	if s.BatchMode {
		if err := n.SetBatchMode(true, s.BatchSize); err != nil {
			return nil, err
		}
	}
	return n, nil
}
