// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"github.com/gomlx/exceptions"
)

// Variant selects the recurrent cell used by the stacked layer.
type Variant int

const (
	// VariantLSTM is the "Long Short-Term Memory" cell, with input, output and
	// forget gates plus a cell state. See the ONNX LSTM operator for the exact
	// equations.
	VariantLSTM Variant = iota

	// VariantGRU is the "Gated Recurrent Unit" cell, with update and reset
	// gates. Follows the ONNX GRU operator with linear_before_reset=0.
	VariantGRU

	// VariantRNNReLU is the vanilla recurrent cell h' = ReLU(Wx + Rh + b).
	VariantRNNReLU

	// VariantRNNTanh is the vanilla recurrent cell h' = Tanh(Wx + Rh + b).
	VariantRNNTanh
)

// Activation tokens accepted by RNN. They are case-sensitive.
const (
	ActivationReLU = "ReLU"
	ActivationTanh = "Tanh"
)

var variantNames = [...]string{"lstm", "gru", "rnnReLU", "rnnTanh"}

// String returns the variant tag: "lstm", "gru", "rnnReLU" or "rnnTanh".
func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return "invalid"
	}
	return variantNames[v]
}

// VariantFromName converts a variant tag (see Variant.String) back to its
// Variant. It panics with a helpful message if name is not a valid tag.
func VariantFromName(name string) Variant {
	for v, vName := range variantNames {
		if name == vName {
			return Variant(v)
		}
	}
	exceptions.Panicf("invalid recurrent variant name %q: options are %v", name, variantNames)
	return Variant(-1)
}

// numGates is the number of gate projections the cell takes per step:
// LSTM has input/output/forget gates plus the cell candidate, GRU has
// update/reset gates plus the hidden candidate, and the vanilla RNN has
// only the hidden projection.
func (v Variant) numGates() int {
	switch v {
	case VariantLSTM:
		return 4
	case VariantGRU:
		return 3
	default:
		return 1
	}
}

// hasCellState reports whether the cell keeps a separate cell state
// alongside the hidden state.
func (v Variant) hasCellState() bool {
	return v == VariantLSTM
}
