// Package bootcfg describes the linker-provided memory map (C1): the
// start/end addresses of the kernel's sections, its heap region, and the
// platform's fixed MMIO windows (§6). On real hardware these values come
// from the linker script; here, and in every test, they are loaded from a
// YAML descriptor so the rest of the boot sequence (cmd/kernel) can run
// identically against real or simulated layouts.
package bootcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Region is a half-open byte range [Start, End).
type Region struct {
	Start uintptr `yaml:"start"`
	End   uintptr `yaml:"end"`
}

// Len returns the region's size in bytes.
func (r Region) Len() uintptr { return r.End - r.Start }

// Config is the linker-provided memory map plus the platform's fixed MMIO
// windows, per §6.
type Config struct {
	Text   Region `yaml:"text"`
	Rodata Region `yaml:"rodata"`
	Data   Region `yaml:"data"`
	Bss    Region `yaml:"bss"`
	Heap   Region `yaml:"heap"`
	Stack  Region `yaml:"stack"`

	UART  uintptr `yaml:"uart"`
	CLINT uintptr `yaml:"clint"`
	PLIC  uintptr `yaml:"plic"`

	// VirtIOBases lists the eight candidate VirtIO MMIO windows, probed in
	// this order (§6: descending from 0x1000_8000).
	VirtIOBases []uintptr `yaml:"virtio_bases"`
}

// Default is the QEMU virt memory map described in §6, used when no
// descriptor file is supplied (e.g. cmd/kernel run against real hardware
// where the linker script, not this package, is authoritative).
func Default() Config {
	bases := make([]uintptr, 8)
	for i := range bases {
		bases[i] = 0x1000_8000 - uintptr(i)*0x1000
	}
	return Config{
		UART:        0x1000_0000,
		CLINT:       0x0200_0000,
		PLIC:        0x0C00_0000,
		VirtIOBases: bases,
	}
}

// Load parses a YAML boot descriptor from path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("bootcfg: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("bootcfg: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants §4.1 requires of the heap region: it must
// be non-empty, page-aligned, and disjoint from every kernel section.
func (c Config) Validate(pageSize uintptr) error {
	if c.Heap.Start == 0 || c.Heap.End <= c.Heap.Start {
		return fmt.Errorf("bootcfg: empty or inverted heap region")
	}
	if c.Heap.Start%pageSize != 0 || c.Heap.End%pageSize != 0 {
		return fmt.Errorf("bootcfg: heap region is not page-aligned")
	}
	sections := []Region{c.Text, c.Rodata, c.Data, c.Bss, c.Stack}
	for _, s := range sections {
		if s.End <= s.Start {
			continue
		}
		if c.Heap.Start < s.End && s.Start < c.Heap.End {
			return fmt.Errorf("bootcfg: heap region overlaps section [%#x,%#x)", s.Start, s.End)
		}
	}
	return nil
}
