// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package rnn assembles stacked recurrent layers -- plain RNN, LSTM and GRU --
// on top of GoMLX, from a handful of hyperparameters: hidden size, number of
// layers, direction and weight-initialization scheme.
//
// All tensor computation, autodiff, parameter storage and device management
// are GoMLX's: this package only creates the weight variables (through the
// named-initializer registry in the initializers sub-package) and emits the
// corresponding graph nodes. Since GoMLX doesn't implement graph-level loops,
// the resulting graph is O(sequence length) in size -- each step of the
// recurrence becomes its own set of nodes.
//
// Example: a 2-layer bidirectional LSTM over x shaped
// [batchSize, seqLen, featuresSize]:
//
//	out := rnn.LSTM(ctx.In("lstm"), x, 128, 2).
//		Direction(rnn.DirBidirectional).
//		WeightInitializer("Xavier").
//		Done() // -> [batchSize, seqLen, 2*128]
//
// Unless for educational or historical reasons, consider transformer or
// (dilated) convolution layers instead.
package rnn

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"

	"github.com/gomlx/rnn/initializers"
)

// ParamWeightInitializer is the context hyperparameter with the default
// weight-initializer name, resolved through the initializers registry.
// Defaults to initializers.Default ("Xavier").
const ParamWeightInitializer = "rnn_weight_initializer"

// DirectionType defines the direction(s) in which the sequence is swept.
type DirectionType int

const (
	DirForward DirectionType = iota
	DirReverse
	DirBidirectional
)

// String implements fmt.Stringer.
func (dir DirectionType) String() string {
	switch dir {
	case DirForward:
		return "forward"
	case DirReverse:
		return "reverse"
	case DirBidirectional:
		return "bidirectional"
	}
	return "invalid"
}

// Config holds the configuration of a recurrent layer stack. It is created
// with New (or the LSTM, GRU and RNN shortcuts), optionally further
// configured with its methods, and finally applied to the input with
// Config.Done (or Config.DoneWithStates).
type Config struct {
	ctx     *context.Context
	x       *Node
	variant Variant

	hiddenSize, numLayers                int
	batchSize, seqLen, featuresSize      int
	direction                            DirectionType
	weightInitializer                    string
	xLengths                             *Node
	initialHiddenState, initialCellState *Node

	// Externally supplied weights (see Config.WithWeights); nil means the
	// layer creates its own variables.
	inputsW, recurrentW, biasesW *Node
}

// New creates a recurrent layer stack of the given variant to be applied
// to x, which must be shaped [batchSize, seqLen, featuresSize].
//
// The returned Config can be further configured; once done, call
// Config.Done to get the output sequence node.
func New(ctx *context.Context, x *Node, hiddenSize, numLayers int, variant Variant) *Config {
	if x.Rank() != 3 {
		exceptions.Panicf("rnn: input must be shaped [batchSize, seqLen, featuresSize], got %s", x.Shape())
	}
	if hiddenSize < 1 {
		exceptions.Panicf("rnn: hiddenSize must be >= 1, got %d", hiddenSize)
	}
	if numLayers < 1 {
		exceptions.Panicf("rnn: numLayers must be >= 1, got %d", numLayers)
	}
	return &Config{
		ctx:          ctx,
		x:            x,
		variant:      variant,
		hiddenSize:   hiddenSize,
		numLayers:    numLayers,
		batchSize:    x.Shape().Dim(0),
		seqLen:       x.Shape().Dim(1),
		featuresSize: x.Shape().Dim(2),
		direction:    DirForward,
	}
}

// LSTM creates a stacked LSTM layer to be applied to x, shaped
// [batchSize, seqLen, featuresSize].
func LSTM(ctx *context.Context, x *Node, hiddenSize, numLayers int) *Config {
	return New(ctx, x, hiddenSize, numLayers, VariantLSTM)
}

// GRU creates a stacked GRU layer to be applied to x, shaped
// [batchSize, seqLen, featuresSize].
func GRU(ctx *context.Context, x *Node, hiddenSize, numLayers int) *Config {
	return New(ctx, x, hiddenSize, numLayers, VariantGRU)
}

// RNN creates a stacked vanilla recurrent layer to be applied to x, shaped
// [batchSize, seqLen, featuresSize].
//
// The activation must be exactly ActivationReLU ("ReLU") or ActivationTanh
// ("Tanh") -- it panics on anything else, before any variable is created.
func RNN(ctx *context.Context, x *Node, hiddenSize, numLayers int, activation string) *Config {
	var variant Variant
	switch activation {
	case ActivationReLU:
		variant = VariantRNNReLU
	case ActivationTanh:
		variant = VariantRNNTanh
	default:
		exceptions.Panicf("rnn: unsupported activation %q for RNN: accepted values are %q and %q",
			activation, ActivationReLU, ActivationTanh)
	}
	return New(ctx, x, hiddenSize, numLayers, variant)
}

// Direction configures which way the sequence is swept: DirForward (default),
// DirReverse or DirBidirectional. With DirBidirectional, the features of the
// two sweeps are concatenated, so the output feature size doubles.
func (c *Config) Direction(dir DirectionType) *Config {
	c.direction = dir
	return c
}

// WeightInitializer sets the named initialization scheme for the weight
// variables. The name is resolved through the initializers registry when
// Config.Done is called; unknown names make Done panic with the registry
// error, before any variable is allocated.
//
// If not set, the context hyperparameter ParamWeightInitializer is used,
// defaulting to initializers.Default.
func (c *Config) WeightInitializer(name string) *Config {
	c.weightInitializer = name
	return c
}

// Ragged indicates that the sequences in x are not used to the end, and
// their lengths are given by lengths, shaped [batchSize]. Steps past a
// sequence's end carry the previous state through unchanged -- this works
// in both directions.
//
// The default is to assume all sequences are dense.
func (c *Config) Ragged(lengths *Node) *Config {
	c.xLengths = lengths
	return c
}

// InitialStates sets the initial hidden state (and, for LSTM, cell state)
// of the recurrence, both shaped [numDirections, batchSize, hiddenSize].
// They default to zeros. cell is ignored by non-LSTM variants.
//
// Only supported for single-layer stacks.
func (c *Config) InitialStates(hidden, cell *Node) *Config {
	c.initialHiddenState = hidden
	c.initialCellState = cell
	return c
}

// WithWeights supplies externally created weights instead of creating
// variables -- in which case the context is not touched and the layer is
// fully deterministic given its inputs. Only supported for single-layer
// stacks.
//
// Shapes (numGates is 4 for LSTM, 3 for GRU, 1 for the vanilla RNN):
//   - inputsW: [numDirections, numGates, hiddenSize, featuresSize]
//   - recurrentW: [numDirections, numGates, hiddenSize, hiddenSize]
//   - biasesW: input-side then recurrent-side biases,
//     [numDirections, 2*numGates, hiddenSize]
func (c *Config) WithWeights(inputsW, recurrentW, biasesW *Node) *Config {
	c.inputsW = inputsW
	c.recurrentW = recurrentW
	c.biasesW = biasesW
	return c
}

// NumDirections returns 2 for DirBidirectional, 1 otherwise.
func (c *Config) NumDirections() int {
	if c.direction == DirBidirectional {
		return 2
	}
	return 1
}

// Done builds the recurrent stack and returns the output sequence of the
// last layer, shaped [batchSize, seqLen, numDirections*hiddenSize].
func (c *Config) Done() *Node {
	output, _, _ := c.DoneWithStates()
	return output
}

// DoneWithStates builds the recurrent stack and returns the output sequence
// of the last layer shaped [batchSize, seqLen, numDirections*hiddenSize],
// the last hidden state of the last layer shaped
// [numDirections, batchSize, hiddenSize] and, for LSTM only, the last cell
// state with the same shape (nil for other variants).
func (c *Config) DoneWithStates() (output, lastHidden, lastCell *Node) {
	// Resolve the initializer name first: an unknown name must fail before
	// any variable is allocated.
	ctx := c.ctx
	if c.inputsW == nil {
		name := c.weightInitializer
		if name == "" {
			name = context.GetParamOr(ctx, ParamWeightInitializer, initializers.Default)
		}
		init, err := initializers.Resolve(name)
		if err != nil {
			panic(err)
		}
		ctx = ctx.WithInitializer(init)
	} else if c.numLayers != 1 {
		exceptions.Panicf("rnn: WithWeights only supports single-layer stacks, numLayers=%d", c.numLayers)
	}
	if (c.initialHiddenState != nil || c.initialCellState != nil) && c.numLayers != 1 {
		exceptions.Panicf("rnn: InitialStates only supports single-layer stacks, numLayers=%d", c.numLayers)
	}

	x := c.x
	for layer := range c.numLayers {
		layerCtx := ctx
		if c.inputsW == nil {
			layerCtx = ctx.Inf("layer_%d", layer)
		}
		output, lastHidden, lastCell = c.applyLayer(layerCtx, x)
		x = output
	}
	return
}
