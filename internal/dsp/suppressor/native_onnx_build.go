//go:build !onnx

package suppressor

import "errors"

// ErrOnnxUnavailable indicates the onnxruntime backend is not compiled in.
var ErrOnnxUnavailable = errors.New("suppressor: onnx backend not available (build with -tags onnx)")

// NativeAvailable reports that no onnxruntime backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeEngine returns an error when built without the onnx tag.
func NewNativeEngine(_ string, _, _, _ int, _ Tuning) (Engine, error) {
	return nil, ErrOnnxUnavailable
}
