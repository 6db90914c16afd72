// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"k8s.io/klog/v2"
)

// applyLayer builds one layer of the recurrence over x, shaped
// [batchSize, seqLen, features]. It returns the layer output shaped
// [batchSize, seqLen, numDirections*hiddenSize] and the last hidden (and,
// for LSTM, cell) states shaped [numDirections, batchSize, hiddenSize].
func (c *Config) applyLayer(ctx *context.Context, x *Node) (output, lastHidden, lastCell *Node) {
	g := x.Graph()
	dtype := x.DType()
	numDirections := c.NumDirections()
	numGates := c.variant.numGates()
	batchSize := c.batchSize
	seqLen := c.seqLen
	features := x.Shape().Dim(2)
	hiddenSize := c.hiddenSize

	inputsW, recurrentW, biasesW := c.inputsW, c.recurrentW, c.biasesW
	if inputsW == nil {
		//   - inputsW: [numDirections, numGates, hiddenSize, features]
		//   - recurrentW: [numDirections, numGates, hiddenSize, hiddenSize]
		//   - biasesW: input-side and recurrent-side biases, [numDirections, 2*numGates, hiddenSize]
		inputsW = ctx.VariableWithShape("inputsW", shapes.Make(dtype, numDirections, numGates, hiddenSize, features)).ValueGraph(g)
		recurrentW = ctx.VariableWithShape("recurrentW", shapes.Make(dtype, numDirections, numGates, hiddenSize, hiddenSize)).ValueGraph(g)
		biasesW = ctx.VariableWithShape("biasesW", shapes.Make(dtype, numDirections, 2*numGates, hiddenSize)).ValueGraph(g)
		if klog.V(2).Enabled() {
			klog.Infof("rnn %s layer (%s): %d weights\n", c.variant, ctx.Scope(),
				numDirections*numGates*hiddenSize*(features+hiddenSize+2))
		}
	} else {
		inputsW.AssertDims(numDirections, numGates, hiddenSize, features)
		recurrentW.AssertDims(numDirections, numGates, hiddenSize, hiddenSize)
		biasesW.AssertDims(numDirections, 2*numGates, hiddenSize)
	}
	if c.xLengths != nil {
		c.xLengths.AssertDims(batchSize)
	}

	// Linear projections of x for the whole sequence, all gates at once.
	// b->batchSize, s->seqLen, f->features, d->numDirections, n->numGates, h->hiddenSize.
	projX := Einsum("bsf,dnhf->dnbsh", x, inputsW)
	{
		biasX := Slice(biasesW, AxisRange(), AxisRangeFromStart(numGates)) // Input-side biases.
		biasX = ExpandAxes(biasX, 2, 3)                                    // Create batchSize and seqLen axes.
		projX = Add(projX, biasX)
	}

	// Starting states: h_{i-1} and, for LSTM, c_{i-1}.
	prevHidden := make([]*Node, numDirections)
	var prevCell []*Node
	if c.variant.hasCellState() {
		prevCell = make([]*Node, numDirections)
	}
	for dirIdx := range numDirections {
		if c.initialHiddenState == nil {
			prevHidden[dirIdx] = Zeros(g, shapes.Make(dtype, batchSize, hiddenSize))
		} else {
			// Checked here and not in Config.InitialStates because the direction
			// may still change after InitialStates is called.
			c.initialHiddenState.AssertDims(numDirections, batchSize, hiddenSize)
			prevHidden[dirIdx] = Squeeze(Slice(c.initialHiddenState, AxisElem(dirIdx)), 0)
		}
		if prevCell != nil {
			if c.initialCellState == nil {
				prevCell[dirIdx] = Zeros(g, shapes.Make(dtype, batchSize, hiddenSize))
			} else {
				c.initialCellState.AssertDims(numDirections, batchSize, hiddenSize)
				prevCell[dirIdx] = Squeeze(Slice(c.initialCellState, AxisElem(dirIdx)), 0)
			}
		}
	}

	// Per-direction recurrent weights and recurrent-side biases.
	dirRecurrentW := make([]*Node, numDirections)
	dirBiasState := make([]*Node, numDirections)
	for dirIdx := range numDirections {
		dirRecurrentW[dirIdx] = Squeeze(Slice(recurrentW, AxisElem(dirIdx)), 0)
		biasState := Slice(biasesW, AxisElem(dirIdx), AxisRangeToEnd(numGates))
		dirBiasState[dirIdx] = Reshape(biasState, numGates, 1, hiddenSize) // Drop direction axis, add batch axis.
	}

	// Hidden states of each step, to assemble the output.
	seqHiddenStates := make([][]*Node, numDirections)
	for ii := range numDirections {
		seqHiddenStates[ii] = make([]*Node, seqLen)
	}

	for seqIdx := range seqLen {
		for dirIdx := range numDirections {
			seqPos := seqIdx
			if dirIdx == 1 || c.direction == DirReverse {
				seqPos = seqLen - 1 - seqIdx
			}

			// Recurrent projection of the previous hidden state, all gates at once.
			projState := Einsum("bh,njh->nbj", prevHidden[dirIdx], dirRecurrentW[dirIdx]) // [numGates, batchSize, hiddenSize]
			projState = Add(projState, dirBiasState[dirIdx])

			// Input-side and recurrent-side projections of gate elem, both
			// shaped [batchSize, hiddenSize]. Kept separate because the GRU
			// mixes them differently for the hidden candidate.
			xPart := func(elem int) *Node {
				proj := Slice(projX, AxisElem(dirIdx), AxisElem(elem), AxisRange() /*batch*/, AxisElem(seqPos))
				return Reshape(proj, batchSize, hiddenSize)
			}
			hPart := func(elem int) *Node {
				return Squeeze(Slice(projState, AxisElem(elem)), 0)
			}

			var hiddenState, cellState *Node
			switch c.variant {
			case VariantLSTM:
				hiddenState, cellState = lstmStep(xPart, hPart, prevCell[dirIdx])
			case VariantGRU:
				hiddenState = gruStep(xPart, hPart, prevHidden[dirIdx])
			case VariantRNNReLU:
				hiddenState = activations.Relu(Add(xPart(0), hPart(0)))
			case VariantRNNTanh:
				hiddenState = Tanh(Add(xPart(0), hPart(0)))
			}

			// Positions past a sequence's end carry the previous state through
			// unchanged -- works in both directions.
			if c.xLengths != nil {
				masked := GreaterOrEqual(Scalar(g, c.xLengths.DType(), seqPos), c.xLengths)
				masked = ExpandAxes(masked, -1)
				hiddenState = Where(masked, prevHidden[dirIdx], hiddenState)
				if cellState != nil {
					cellState = Where(masked, prevCell[dirIdx], cellState)
				}
			}

			seqHiddenStates[dirIdx][seqPos] = hiddenState
			prevHidden[dirIdx] = hiddenState
			if cellState != nil {
				prevCell[dirIdx] = cellState
			}
		}
	}

	// Assemble the output sequence: [batchSize, seqLen, numDirections*hiddenSize].
	perDirection := make([]*Node, numDirections)
	for dirIdx := range numDirections {
		perDirection[dirIdx] = Stack(seqHiddenStates[dirIdx], 1)
	}
	if numDirections == 1 {
		output = perDirection[0]
	} else {
		output = Concatenate(perDirection, -1)
	}
	lastHidden = Stack(prevHidden, 0)
	if prevCell != nil {
		lastCell = Stack(prevCell, 0)
	}
	return
}

// lstmStep computes one LSTM step. Gate order follows the ONNX LSTM
// operator: 0 input, 1 output, 2 forget, 3 cell candidate.
func lstmStep(xPart, hPart func(elem int) *Node, prevCell *Node) (hidden, cell *Node) {
	iT := Sigmoid(Add(xPart(0), hPart(0)))
	oT := Sigmoid(Add(xPart(1), hPart(1)))
	fT := Sigmoid(Add(xPart(2), hPart(2)))
	cT := Tanh(Add(xPart(3), hPart(3)))
	cell = Add(Mul(prevCell, fT), Mul(cT, iT))
	hidden = Mul(oT, Tanh(cell))
	return
}

// gruStep computes one GRU step. Gate order follows the ONNX GRU operator:
// 0 update, 1 reset, 2 hidden candidate; the reset gate scales the
// recurrent projection of the candidate including its bias
// (linear_before_reset=0 semantics).
func gruStep(xPart, hPart func(elem int) *Node, prevHidden *Node) *Node {
	zT := Sigmoid(Add(xPart(0), hPart(0)))
	rT := Sigmoid(Add(xPart(1), hPart(1)))
	hT := Tanh(Add(xPart(2), Mul(rT, hPart(2))))
	return Add(Mul(OneMinus(zT), hT), Mul(zT, prevHidden))
}
