// Package variant enumerates the execution variants a kernel can be run
// under. The enumeration is closed: every switch over ID is total and an
// unknown name or value is an error.
package variant

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies one execution variant.
type ID int

const (
	BaseSeq ID = iota
	LambdaSeq
	RAJASeq

	BaseOpenMP
	LambdaOpenMP
	RAJAOpenMP

	BaseOpenMPTarget
	RAJAOpenMPTarget

	BaseCUDA
	LambdaCUDA
	RAJACUDA

	BaseHIP
	LambdaHIP
	RAJAHIP

	numVariants
)

// Count is the number of variants in the enumeration.
const Count = int(numVariants)

// ErrUnknownVariant is returned when a variant name or value is not part of
// the enumeration.
var ErrUnknownVariant = errors.New("unknown variant")

var names = [numVariants]string{
	BaseSeq:          "Base_Seq",
	LambdaSeq:        "Lambda_Seq",
	RAJASeq:          "RAJA_Seq",
	BaseOpenMP:       "Base_OpenMP",
	LambdaOpenMP:     "Lambda_OpenMP",
	RAJAOpenMP:       "RAJA_OpenMP",
	BaseOpenMPTarget: "Base_OpenMPTarget",
	RAJAOpenMPTarget: "RAJA_OpenMPTarget",
	BaseCUDA:         "Base_CUDA",
	LambdaCUDA:       "Lambda_CUDA",
	RAJACUDA:         "RAJA_CUDA",
	BaseHIP:          "Base_HIP",
	LambdaHIP:        "Lambda_HIP",
	RAJAHIP:          "RAJA_HIP",
}

// All returns every variant in enumeration order. Hand-written variants of a
// backend always precede the abstraction-layer variant of the same backend.
func All() []ID {
	ids := make([]ID, numVariants)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Valid reports whether id is a member of the enumeration.
func (id ID) Valid() bool {
	return id >= 0 && id < numVariants
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("Variant(%d)", int(id))
	}
	return names[id]
}

// Parse maps a variant name to its ID. Matching is case-insensitive.
func Parse(name string) (ID, error) {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// ParseList parses a list of variant names, preserving order and dropping
// duplicates.
func ParseList(list []string) ([]ID, error) {
	seen := make(map[ID]bool, len(list))
	ids := make([]ID, 0, len(list))
	for _, name := range list {
		id, err := Parse(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Backend is the execution backend underneath a variant.
type Backend int

const (
	Seq Backend = iota
	OpenMP
	OpenMPTarget
	CUDA
	HIP
)

func (b Backend) String() string {
	switch b {
	case Seq:
		return "Seq"
	case OpenMP:
		return "OpenMP"
	case OpenMPTarget:
		return "OpenMPTarget"
	case CUDA:
		return "CUDA"
	case HIP:
		return "HIP"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// Style separates hand-written code from the abstraction layer.
type Style int

const (
	Base Style = iota
	Lambda
	RAJA
)

func (s Style) String() string {
	switch s {
	case Base:
		return "Base"
	case Lambda:
		return "Lambda"
	case RAJA:
		return "RAJA"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// Backend returns the backend the variant executes on.
func (id ID) Backend() Backend {
	switch id {
	case BaseSeq, LambdaSeq, RAJASeq:
		return Seq
	case BaseOpenMP, LambdaOpenMP, RAJAOpenMP:
		return OpenMP
	case BaseOpenMPTarget, RAJAOpenMPTarget:
		return OpenMPTarget
	case BaseCUDA, LambdaCUDA, RAJACUDA:
		return CUDA
	case BaseHIP, LambdaHIP, RAJAHIP:
		return HIP
	default:
		panic(fmt.Sprintf("variant: backend of %v", id))
	}
}

// Style returns how the variant is written.
func (id ID) Style() Style {
	switch id {
	case BaseSeq, BaseOpenMP, BaseOpenMPTarget, BaseCUDA, BaseHIP:
		return Base
	case LambdaSeq, LambdaOpenMP, LambdaCUDA, LambdaHIP:
		return Lambda
	case RAJASeq, RAJAOpenMP, RAJAOpenMPTarget, RAJACUDA, RAJAHIP:
		return RAJA
	default:
		panic(fmt.Sprintf("variant: style of %v", id))
	}
}

// IsGPU reports whether the variant launches on a CUDA or HIP device.
func (id ID) IsGPU() bool {
	b := id.Backend()
	return b == CUDA || b == HIP
}

// IsDevice reports whether the variant needs a device runtime of any kind,
// offload included.
func (id ID) IsDevice() bool {
	return id.IsGPU() || id.Backend() == OpenMPTarget
}

// Of returns the variant for a backend and style, or false when the
// combination is not part of the enumeration (there is no Lambda offload
// variant).
func Of(b Backend, s Style) (ID, bool) {
	for _, id := range All() {
		if id.Backend() == b && id.Style() == s {
			return id, true
		}
	}
	return 0, false
}
