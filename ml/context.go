// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
package ml

// Context represents an execution context for tensor operations. While
// gradients are enabled, results of operations on trainable tensors are
// recorded so that Backward can compute gradients.
type Context interface {
	Zeros(dtype DType, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor

	// Training reports whether stochastic layers such as dropout are active
	Training() bool

	// SetTraining switches the context between training and inference mode
	SetTraining(bool) Context

	// GradEnabled reports whether operations are recorded for Backward
	GradEnabled() bool

	// SetGradEnabled switches recording on or off. Without recording every
	// operation is evaluated immediately and no result requires a gradient.
	SetGradEnabled(bool) Context

	// Backward propagates gradients from t to every trainable tensor it
	// depends on. The gradient of t itself is seeded with ones.
	Backward(t Tensor)

	Close()
}

// Tensor represents a multi-dimensional row-major array with various operations.
//
// Binary elementwise operations broadcast their operands following NumPy
// rules. Operations panic when shapes are incompatible.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType
	Cast(ctx Context, dtype DType) Tensor

	Bytes() []byte
	Floats() []float32
	Ints() []int32

	// FromFloats overwrites the tensor contents without recording an operation
	FromFloats([]float32)

	// Grad returns the accumulated gradient or nil
	Grad() Tensor
	ZeroGrad()
	RequiresGrad() bool

	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Scale(ctx Context, s float64) Tensor

	// Mulmat multiplies t2 (..., k) with the transpose of t (n, k), giving (..., n)
	Mulmat(ctx Context, t2 Tensor) Tensor

	// Softmax and LogSoftmax normalize over the last dimension
	Softmax(ctx Context) Tensor
	LogSoftmax(ctx Context) Tensor

	Tanh(ctx Context) Tensor
	Sigmoid(ctx Context) Tensor

	// Sum reduces dimension dim, removing it from the shape
	Sum(ctx Context, dim int) Tensor

	Reshape(ctx Context, shape ...int) Tensor
	Concat(ctx Context, t2 Tensor, dim int) Tensor
	Stack(ctx Context, dim int, s ...Tensor) Tensor
	Slice(ctx Context, dim, low, high, step int) Tensor

	// Rows gathers entries of the first dimension selected by the I32 tensor ids
	Rows(ctx Context, ids Tensor) Tensor

	// Dropout zeroes elements with probability p in training mode and
	// scales the remaining ones by 1/(1-p). It is the identity otherwise.
	Dropout(ctx Context, p float32) Tensor
}
