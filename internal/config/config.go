package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the config file inside the suite home.
	ConfigFileName = "config.yaml"
	// DefaultChecksumTolerance is the relative tolerance used when comparing
	// double precision checksums between variants.
	DefaultChecksumTolerance = 1e-10
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Format    string `yaml:"format"`
	} `yaml:"logger"`
	Run        RunConfig       `yaml:"run"`
	GPU        GPUConfig       `yaml:"gpu"`
	DataSpaces DataSpaceConfig `yaml:"dataSpaces"`
	Comm       CommConfig      `yaml:"comm"`
	Results    ResultsConfig   `yaml:"results"`
	Metrics    struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// RunConfig selects what runs and how big it is.
type RunConfig struct {
	Kernels         []string `yaml:"kernels"`
	ExcludeKernels  []string `yaml:"excludeKernels"`
	Variants        []string `yaml:"variants"`
	ExcludeVariants []string `yaml:"excludeVariants"`
	Tunings         []string `yaml:"tunings"`
	Features        []string `yaml:"features"`

	// Size overrides every kernel's default problem size when positive,
	// otherwise defaults are scaled by SizeFactor.
	Size       int     `yaml:"size"`
	SizeFactor float64 `yaml:"sizeFactor"`
	// Reps overrides every kernel's default repetition count when positive,
	// otherwise defaults are scaled by RepFactor.
	Reps      int     `yaml:"reps"`
	RepFactor float64 `yaml:"repFactor"`
	NPasses   int     `yaml:"npasses"`

	// GPUBlockSizes restricts the block size tunings. Empty means every
	// compiled block size is valid.
	GPUBlockSizes []int `yaml:"gpuBlockSizes"`
	NumThreads    int   `yaml:"numThreads"`

	ChecksumTolerance float64 `yaml:"checksumTolerance"`
}

// GPUConfig describes the device presented by emulated runtimes.
type GPUConfig struct {
	TotalMemory                   int64 `yaml:"totalMemory"`
	MultiProcessors               int   `yaml:"multiProcessors"`
	MaxThreadsPerBlock            int   `yaml:"maxThreadsPerBlock"`
	MaxThreadsPerMultiProcessor   int   `yaml:"maxThreadsPerMultiProcessor"`
	MaxBlocksPerMultiProcessor    int   `yaml:"maxBlocksPerMultiProcessor"`
	SharedMemoryPerBlock          int   `yaml:"sharedMemoryPerBlock"`
	SharedMemoryPerMultiProcessor int   `yaml:"sharedMemoryPerMultiProcessor"`
}

// DataSpaceConfig names the memory space used by each backend. Values are
// parsed by the dataspace package.
type DataSpaceConfig struct {
	Seq          string `yaml:"seq"`
	OpenMP       string `yaml:"openmp"`
	OpenMPTarget string `yaml:"openmpTarget"`
	CUDA         string `yaml:"cuda"`
	HIP          string `yaml:"hip"`

	CUDAReduction string `yaml:"cudaReduction"`
	HIPReduction  string `yaml:"hipReduction"`

	SeqComm    string `yaml:"seqComm"`
	OpenMPComm string `yaml:"openmpComm"`
	CUDAComm   string `yaml:"cudaComm"`
	HIPComm    string `yaml:"hipComm"`
	TargetComm string `yaml:"openmpTargetComm"`
}

// CommConfig configures the in-process rank world used by halo exchanges.
type CommConfig struct {
	Ranks int `yaml:"ranks"`
	// Division is the 3D rank grid. Empty means factor Ranks automatically.
	Division  []int `yaml:"division"`
	HaloWidth int   `yaml:"haloWidth"`
	NumVars   int   `yaml:"numVars"`
}

type ResultsConfig struct {
	OutputDir string `yaml:"outputDir"`
	StorePath string `yaml:"storePath"`
	JSON      bool   `yaml:"json"`
	Chart     bool   `yaml:"chart"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Logger.Verbosity = "info"
	cfg.Logger.Format = "console"
	cfg.Run = RunConfig{
		SizeFactor:        1.0,
		RepFactor:         1.0,
		NPasses:           1,
		ChecksumTolerance: DefaultChecksumTolerance,
	}
	cfg.GPU = GPUConfig{
		TotalMemory:                   4 << 30,
		MultiProcessors:               16,
		MaxThreadsPerBlock:            1024,
		MaxThreadsPerMultiProcessor:   2048,
		MaxBlocksPerMultiProcessor:    32,
		SharedMemoryPerBlock:          48 << 10,
		SharedMemoryPerMultiProcessor: 64 << 10,
	}
	cfg.DataSpaces = DataSpaceConfig{
		Seq:           "Host",
		OpenMP:        "Omp",
		OpenMPTarget:  "OmpTarget",
		CUDA:          "CudaDevice",
		HIP:           "HipDevice",
		CUDAReduction: "CudaDevice",
		HIPReduction:  "HipDevice",
		SeqComm:       "Host",
		OpenMPComm:    "Omp",
		CUDAComm:      "Copy",
		HIPComm:       "Copy",
		TargetComm:    "Copy",
	}
	cfg.Comm = CommConfig{
		Ranks:     8,
		HaloWidth: 1,
		NumVars:   3,
	}
	cfg.Results = ResultsConfig{
		OutputDir: ".",
	}
	cfg.Metrics.ListenAddress = ":9100"
	return cfg
}

// LoadConfig reads a YAML file on top of Default so that omitted keys keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to Default when
// the file does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks value ranges. It does not resolve names; unknown kernel,
// variant or data space names are reported by the packages that own them.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Size < 0 {
		errs = append(errs, fmt.Errorf("run.size must not be negative: %d", c.Run.Size))
	}
	if c.Run.SizeFactor <= 0 {
		errs = append(errs, fmt.Errorf("run.sizeFactor must be positive: %g", c.Run.SizeFactor))
	}
	if c.Run.Reps < 0 {
		errs = append(errs, fmt.Errorf("run.reps must not be negative: %d", c.Run.Reps))
	}
	if c.Run.RepFactor <= 0 {
		errs = append(errs, fmt.Errorf("run.repFactor must be positive: %g", c.Run.RepFactor))
	}
	if c.Run.NPasses < 1 {
		errs = append(errs, fmt.Errorf("run.npasses must be at least 1: %d", c.Run.NPasses))
	}
	if c.Run.NumThreads < 0 {
		errs = append(errs, fmt.Errorf("run.numThreads must not be negative: %d", c.Run.NumThreads))
	}
	if c.Run.ChecksumTolerance < 0 {
		errs = append(errs, fmt.Errorf("run.checksumTolerance must not be negative: %g", c.Run.ChecksumTolerance))
	}
	for _, bs := range c.Run.GPUBlockSizes {
		if bs <= 0 {
			errs = append(errs, fmt.Errorf("run.gpuBlockSizes entries must be positive: %d", bs))
		}
	}
	if c.GPU.MultiProcessors <= 0 || c.GPU.MaxThreadsPerBlock <= 0 || c.GPU.MaxThreadsPerMultiProcessor <= 0 {
		errs = append(errs, errors.New("gpu limits must be positive"))
	}
	if c.Comm.Ranks < 1 {
		errs = append(errs, fmt.Errorf("comm.ranks must be at least 1: %d", c.Comm.Ranks))
	}
	if len(c.Comm.Division) != 0 && len(c.Comm.Division) != 3 {
		errs = append(errs, fmt.Errorf("comm.division must have 3 entries, got %d", len(c.Comm.Division)))
	}
	if c.Comm.HaloWidth < 1 || c.Comm.NumVars < 1 {
		errs = append(errs, errors.New("comm.haloWidth and comm.numVars must be at least 1"))
	}
	return errors.Join(errs...)
}

// GetDefaultConfigHome returns the directory holding config.yaml and the
// results store, honouring PERFSUITE_HOME.
func GetDefaultConfigHome() string {
	if home := os.Getenv("PERFSUITE_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".perfsuite"
	}
	return filepath.Join(userHome, ".perfsuite")
}

// ConfigPath returns the config file path inside a suite home directory.
func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFileName)
}
