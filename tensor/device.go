package tensor

import "sync"

var (
	acceleratorMu    sync.Mutex
	acceleratorProbe func() bool
)

// RegisterAccelerator installs the probe an accelerator runtime uses to
// announce itself. With no probe registered only the CPU is available.
func RegisterAccelerator(probe func() bool) {
	acceleratorMu.Lock()
	defer acceleratorMu.Unlock()
	acceleratorProbe = probe
}

// Available reports whether tensors can live on the given device. The CPU is
// always available.
func Available(device DeviceType) bool {
	if device == CPU {
		return true
	}
	acceleratorMu.Lock()
	probe := acceleratorProbe
	acceleratorMu.Unlock()
	return probe != nil && probe()
}

// Resolve maps a requested device to one that is actually present, falling
// back to the CPU when the accelerator is missing. It never fails.
func Resolve(device DeviceType) DeviceType {
	if Available(device) {
		return device
	}
	return CPU
}

// ToDevice moves the tensor to the given device. The transfer itself is the
// accelerator runtime's job; orchestration only tracks placement, and a move
// is complete by the time this returns, so host reads that follow observe
// synchronized data.
func (t *Tensor) ToDevice(device DeviceType) *Tensor {
	t.Device = device
	return t
}
