package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Float64
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// Tensor is the named-tensor value that travels inside a batch. The heavy
// autograd runtime lives outside this repository; a Tensor here carries just
// enough for batch placement: shape, element type, device tag, and the host
// copy of the data.
type Tensor struct {
	Shape  []int
	DType  DType
	Device DeviceType
	Data   interface{}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s)", t.Shape, t.DType, t.Device)
}

// NumElems returns the number of elements implied by the shape.
func (t *Tensor) NumElems() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// NewFloat32 builds a CPU tensor over the given float32 data.
func NewFloat32(shape []int, data []float32) (*Tensor, error) {
	t := &Tensor{Shape: shape, DType: Float32, Device: CPU, Data: data}
	if len(data) != t.NumElems() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return t, nil
}

// NewInt32 builds a CPU tensor over the given int32 data.
func NewInt32(shape []int, data []int32) (*Tensor, error) {
	t := &Tensor{Shape: shape, DType: Int32, Device: CPU, Data: data}
	if len(data) != t.NumElems() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return t, nil
}

// Zeros allocates a zero-filled tensor on the given device.
func Zeros(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	n := 1
	for i, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
		n *= dim
	}
	t := &Tensor{Shape: shape, DType: dtype, Device: device}
	switch dtype {
	case Float32:
		t.Data = make([]float32, n)
	case Float64:
		t.Data = make([]float64, n)
	case Int32:
		t.Data = make([]int32, n)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
	return t, nil
}

// ToFloat32 casts the tensor's data to float32 in place. Tensors that already
// hold float32 are left untouched.
func (t *Tensor) ToFloat32() *Tensor {
	switch data := t.Data.(type) {
	case []float64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		t.Data = out
	case []int32:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		t.Data = out
	}
	t.DType = Float32
	return t
}

// Float32Slice returns the host data as float32, or an error if the tensor
// holds another element type.
func (t *Tensor) Float32Slice() ([]float32, error) {
	data, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor holds %s, not Float32", t.DType)
	}
	return data, nil
}
