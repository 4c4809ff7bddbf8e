package engine

import "github.com/shirou/gopsutil/v4/mem"

// minLoadMemoryBytes is the available-memory floor checked before a load.
// The quantized model plus context buffers want roughly 2.5GB.
const minLoadMemoryBytes = 2560 << 20

// defaultMemoryProbe reports bytes of memory available to the process.
func defaultMemoryProbe() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
