package sensitive

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// RequiredCPUFlagsAMD64 must all be present for local inference on amd64.
var RequiredCPUFlagsAMD64 = []string{"avx2", "fma"}

// CapabilityStatus is the cached result of the CPU probe.
type CapabilityStatus int32

const (
	CapabilityUnknown CapabilityStatus = iota
	CapabilitySupported
	CapabilityUnsupported
)

func (s CapabilityStatus) String() string {
	switch s {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Prober decides once whether the host can run local inference.
type Prober struct {
	arch   string
	flags  func() ([]string, error)
	once   sync.Once
	status atomic.Int32
}

// NewProber returns a prober for arch. flags lists the host CPU feature
// flags; it is consulted at most once, and only on amd64.
func NewProber(arch string, flags func() ([]string, error)) *Prober {
	return &Prober{arch: arch, flags: flags}
}

var (
	defaultProber     *Prober
	defaultProberOnce sync.Once
)

// DefaultProber is the process-wide prober for the running host.
func DefaultProber() *Prober {
	defaultProberOnce.Do(func() {
		defaultProber = NewProber(runtime.GOARCH, hostCPUFlags)
	})
	return defaultProber
}

// Supported reports whether local inference may run. Concurrent first
// callers block until the single probe finishes.
func (p *Prober) Supported() bool {
	p.once.Do(func() {
		status := CapabilitySupported
		if err := p.probe(); err != nil {
			status = CapabilityUnsupported
			slog.Warn("sensitive: local inference unsupported", "error", err)
		}
		p.status.Store(int32(status))
		slog.Debug("sensitive: cpu probe", "arch", p.arch, "status", status.String())
	})
	return CapabilityStatus(p.status.Load()) == CapabilitySupported
}

// Status returns the cached status without probing.
func (p *Prober) Status() CapabilityStatus {
	return CapabilityStatus(p.status.Load())
}

// probe returns nil when the host can run the model, or the reason it cannot.
func (p *Prober) probe() error {
	switch p.arch {
	case "amd64":
		if p.flags == nil {
			return errors.New("sensitive: no cpu flag source")
		}
		flags, err := p.flags()
		if err != nil {
			return fmt.Errorf("sensitive: read cpu flags: %w", err)
		}
		for _, required := range RequiredCPUFlagsAMD64 {
			if !slices.Contains(flags, required) {
				return fmt.Errorf("sensitive: cpu lacks required flag %s", required)
			}
		}
		return nil
	case "arm64":
		// No known required extensions.
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArch, p.arch)
	}
}

func hostCPUFlags() ([]string, error) {
	var flags []string
	for _, f := range []struct {
		name string
		has  bool
	}{
		{"sse3", cpu.X86.HasSSE3},
		{"ssse3", cpu.X86.HasSSSE3},
		{"sse4_1", cpu.X86.HasSSE41},
		{"sse4_2", cpu.X86.HasSSE42},
		{"popcnt", cpu.X86.HasPOPCNT},
		{"avx", cpu.X86.HasAVX},
		{"avx2", cpu.X86.HasAVX2},
		{"fma", cpu.X86.HasFMA},
		{"bmi2", cpu.X86.HasBMI2},
		{"avx512f", cpu.X86.HasAVX512F},
	} {
		if f.has {
			flags = append(flags, f.name)
		}
	}
	return flags, nil
}
