package gpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

// HostInfo describes the machine the suite runs on. It is recorded with
// every run so results from different hosts can be told apart.
type HostInfo struct {
	Name        string   `json:"name"`
	OS          string   `json:"os"`
	Arch        string   `json:"arch"`
	NumCPU      int      `json:"numCPU"`
	GoVersion   string   `json:"goVersion"`
	TotalMemory int64    `json:"totalMemory"`
	FreeMemory  int64    `json:"freeMemory"`
	Features    []string `json:"features"`
}

// DetectHost gathers the host description.
func DetectHost() HostInfo {
	total, free := systemMemory()
	return HostInfo{
		Name:        fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		TotalMemory: total,
		FreeMemory:  free,
		Features:    cpuFeatures(),
	}
}

// cpuFeatures lists the vector extensions relevant to kernel throughput.
func cpuFeatures() []string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41 || cpu.X86.HasSSE42, "SSE4")
		add(cpu.X86.HasAVX, "AVX")
		add(cpu.X86.HasAVX2, "AVX2")
		add(cpu.X86.HasFMA, "FMA")
		add(cpu.X86.HasAVX512F, "AVX512F")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "NEON")
		add(cpu.ARM64.HasFPHP, "FP16")
		add(cpu.ARM64.HasSVE, "SVE")
	}
	return features
}
