// Package spectral holds the array primitives for power-spectrum analysis:
// a dense rank-N tensor, the frequency axis, unit-axis orientation, and the
// per-unit fit result. Index and shape misuse panics; data-dependent
// failures surface as errors at the service boundary.
package spectral

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
)

// Tensor is a dense row-major float64 array of arbitrary rank. Power data
// arrives as rank 3 (event, frequency, electrode) or rank 4 (event,
// frequency, electrode, time bin); statistic outputs reuse the same
// container at lower ranks. All transforms copy; a Tensor never aliases
// another unless Data is shared deliberately.
type Tensor struct {
	shape []int
	data  []float64
}

// New creates a zero-filled tensor with the given shape
func New(shape ...int) *Tensor {
	return &Tensor{shape: checkShape(shape), data: make([]float64, numElems(shape))}
}

// FromSlice wraps an existing flat slice in row-major order. The slice is
// owned by the tensor afterwards.
func FromSlice(data []float64, shape ...int) *Tensor {
	checkShape(shape)
	if len(data) != numElems(shape) {
		panic(fmt.Sprintf("spectral: %d elements do not fill shape %v", len(data), shape))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}
}

// Filled creates a tensor with every element set to v
func Filled(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

func checkShape(shape []int) []int {
	if len(shape) == 0 {
		panic("spectral: empty shape")
	}
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("spectral: non-positive dimension in shape %v", shape))
		}
	}
	return append([]int(nil), shape...)
}

func numElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rank returns the number of axes
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Shape returns a copy of the dimension sizes
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dim returns the size of axis i
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Len returns the total number of elements
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the backing slice in row-major order
func (t *Tensor) Data() []float64 {
	return t.data
}

func (t *Tensor) offset(ix []int) int {
	if len(ix) != len(t.shape) {
		panic(fmt.Sprintf("spectral: %d indices for rank %d tensor", len(ix), len(t.shape)))
	}
	off := 0
	for k, i := range ix {
		if i < 0 || i >= t.shape[k] {
			panic(fmt.Sprintf("spectral: index %d out of range for axis %d (size %d)", i, k, t.shape[k]))
		}
		off = off*t.shape[k] + i
	}
	return off
}

// At returns the element at the given multi-index
func (t *Tensor) At(ix ...int) float64 {
	return t.data[t.offset(ix)]
}

// Set stores v at the given multi-index
func (t *Tensor) Set(v float64, ix ...int) {
	t.data[t.offset(ix)] = v
}

// Clone returns a deep copy
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: append([]int(nil), t.shape...), data: append([]float64(nil), t.data...)}
}

// Map returns a new tensor with f applied to every element
func (t *Tensor) Map(f func(float64) float64) *Tensor {
	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = f(v)
	}
	return out
}

// SameShape reports whether both tensors have identical shapes
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Equal reports exact equality of shape and elements. NaN compares equal to
// NaN so round-trip identities hold on arrays with missing values.
func (t *Tensor) Equal(o *Tensor) bool {
	if !t.SameShape(o) {
		return false
	}
	for i := range t.data {
		if math.Float64bits(t.data[i]) != math.Float64bits(o.data[i]) {
			return false
		}
	}
	return true
}

// EqualApprox reports shape equality with elements within tol. NaN matches
// only NaN.
func (t *Tensor) EqualApprox(o *Tensor, tol float64) bool {
	if !t.SameShape(o) {
		return false
	}
	for i := range t.data {
		a, b := t.data[i], o.data[i]
		if math.IsNaN(a) || math.IsNaN(b) {
			if !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
			continue
		}
		if math.Abs(a-b) > tol {
			return false
		}
	}
	return true
}

// SwapAxes returns a contiguous copy with axes a and b exchanged
func (t *Tensor) SwapAxes(a, b int) *Tensor {
	r := len(t.shape)
	if a < 0 || a >= r || b < 0 || b >= r {
		panic(fmt.Sprintf("spectral: swap axes (%d, %d) out of range for rank %d", a, b, r))
	}
	if a == b {
		return t.Clone()
	}
	newShape := t.Shape()
	newShape[a], newShape[b] = newShape[b], newShape[a]
	out := New(newShape...)

	srcIx := make([]int, r)
	dstIx := make([]int, r)
	for flat := 0; flat < len(t.data); flat++ {
		rem := flat
		for k := r - 1; k >= 0; k-- {
			srcIx[k] = rem % t.shape[k]
			rem /= t.shape[k]
		}
		copy(dstIx, srcIx)
		dstIx[a], dstIx[b] = srcIx[b], srcIx[a]
		out.data[out.offset(dstIx)] = t.data[flat]
	}
	return out
}

// SubLast copies the slice at index u of the last axis, dropping that axis.
// For a (events, freqs, units) tensor this yields the (events, freqs) block
// a single worker fits.
func (t *Tensor) SubLast(u int) *Tensor {
	r := len(t.shape)
	if r < 2 {
		panic("spectral: SubLast needs rank >= 2")
	}
	last := t.shape[r-1]
	if u < 0 || u >= last {
		panic(fmt.Sprintf("spectral: unit %d out of range (size %d)", u, last))
	}
	out := New(t.shape[:r-1]...)
	for m := range out.data {
		out.data[m] = t.data[m*last+u]
	}
	return out
}

// StackLast stacks equally shaped tensors along a new trailing axis, the
// inverse of SubLast over all units.
func StackLast(parts []*Tensor) *Tensor {
	if len(parts) == 0 {
		panic("spectral: StackLast of nothing")
	}
	first := parts[0]
	for _, p := range parts[1:] {
		if !first.SameShape(p) {
			panic(fmt.Sprintf("spectral: StackLast shape mismatch %v vs %v", first.shape, p.shape))
		}
	}
	u := len(parts)
	out := New(append(first.Shape(), u)...)
	for j, p := range parts {
		for m, v := range p.data {
			out.data[m*u+j] = v
		}
	}
	return out
}

// MeanOverEvents averages the selected first-axis rows, dropping that axis.
// NaN propagates, as a plain mean does.
func MeanOverEvents(t *Tensor, rows []int) *Tensor {
	return reduceOverEvents(t, rows, false)
}

// NanMeanOverEvents averages the selected first-axis rows ignoring NaN. A
// coordinate with no finite values yields NaN.
func NanMeanOverEvents(t *Tensor, rows []int) *Tensor {
	return reduceOverEvents(t, rows, true)
}

func reduceOverEvents(t *Tensor, rows []int, skipNaN bool) *Tensor {
	if len(t.shape) < 2 {
		panic("spectral: event reduction needs rank >= 2")
	}
	inner := numElems(t.shape[1:])
	out := New(t.shape[1:]...)
	for m := 0; m < inner; m++ {
		sum, n := 0.0, 0
		for _, r := range rows {
			v := t.data[r*inner+m]
			if skipNaN && math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			out.data[m] = math.NaN()
		} else {
			out.data[m] = sum / float64(n)
		}
	}
	return out
}

// gob payload; keeps the exported surface of Tensor method-only
type tensorWire struct {
	Shape []int
	Data  []float64
}

// GobEncode implements gob.GobEncoder
func (t *Tensor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tensorWire{Shape: t.shape, Data: t.data}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder
func (t *Tensor) GobDecode(b []byte) error {
	var w tensorWire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}
	checkShape(w.Shape)
	if len(w.Data) != numElems(w.Shape) {
		return fmt.Errorf("spectral: gob payload %d elements for shape %v", len(w.Data), w.Shape)
	}
	t.shape = w.Shape
	t.data = w.Data
	return nil
}

type tensorJSON struct {
	Shape []int      `json:"shape"`
	Data  []*float64 `json:"data"`
}

// MarshalJSON encodes the tensor as {"shape":[...],"data":[...]}. JSON has
// no NaN literal, so non-finite elements serialize as null.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	w := tensorJSON{Shape: t.shape, Data: make([]*float64, len(t.data))}
	for i := range t.data {
		if v := t.data[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			w.Data[i] = &t.data[i]
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the shape/data form, mapping null back to NaN
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var w tensorJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	checkShape(w.Shape)
	if len(w.Data) != numElems(w.Shape) {
		return fmt.Errorf("spectral: json payload %d elements for shape %v", len(w.Data), w.Shape)
	}
	data := make([]float64, len(w.Data))
	for i, p := range w.Data {
		if p == nil {
			data[i] = math.NaN()
		} else {
			data[i] = *p
		}
	}
	t.shape = w.Shape
	t.data = data
	return nil
}
