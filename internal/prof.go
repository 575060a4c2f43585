// Package internal holds helpers shared by the commands of this repository.
package internal

import (
	"os"
	"runtime/pprof"
)

// CPUProfile starts profiling the CPU to a file. Profiling stops when the returned function is called.
func CPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}
