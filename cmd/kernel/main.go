// Command kernel is QorKernel's boot entry point: it loads the memory
// map, brings up the physical allocators, the CLINT/PLIC/UART devices,
// the VirtIO block transport, the filesystem, and the process table,
// then arms the trap vector and hands control to the first process
// (§2's boot/data-flow ordering). Grounded in the teacher's kinit/kmain
// split (biscuit/src/*/main.go).
package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/bitmap"
	"github.com/AshTS/QorKernel/internal/bootcfg"
	"github.com/AshTS/QorKernel/internal/byteheap"
	"github.com/AshTS/QorKernel/internal/clint"
	"github.com/AshTS/QorKernel/internal/elf"
	"github.com/AshTS/QorKernel/internal/ext2"
	"github.com/AshTS/QorKernel/internal/id"
	"github.com/AshTS/QorKernel/internal/klog"
	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/plic"
	"github.com/AshTS/QorKernel/internal/proc"
	"github.com/AshTS/QorKernel/internal/sv39"
	"github.com/AshTS/QorKernel/internal/syscall"
	"github.com/AshTS/QorKernel/internal/trap"
	"github.com/AshTS/QorKernel/internal/uart"
	"github.com/AshTS/QorKernel/internal/vfs"
	"github.com/AshTS/QorKernel/internal/virtio"
)

func main() {
	cfgPath := flag.String("boot-config", "", "path to a YAML boot descriptor (defaults to the built-in QEMU virt map)")
	initPath := flag.String("init", "", "path to the ELF image to load as the first process")
	logLevel := flag.String("log-level", "info", "trace|debug|info|warn|error")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qorkernel:", err)
		os.Exit(1)
	}

	u := uart.New(cfg.UART)
	klog.SetGlobal(klog.New(u, parseLevel(*logLevel), false))
	log := klog.Global()
	log.Info("qorkernel booting")

	if err := cfg.Validate(mem.PageSize); err != nil {
		log.Error("bad boot config: %v", err)
		os.Exit(1)
	}

	bump := new(mem.BumpAllocator)
	bump.AssignRegion(mem.Pa(cfg.Heap.Start), mem.Pa(cfg.Heap.End))
	log.Info("bump allocator: %d pages available", bump.TotalPages())

	bitmapPages := bump.TotalPages() / 2
	pages, _, err := bump.AllocatePages(bitmapPages)
	if err != nil {
		log.Error("carving bitmap region: %v", err)
		os.Exit(1)
	}
	pageAlloc := bitmap.FromPages(pages)
	log.Info("bitmap allocator: %d pages", pageAlloc.Capacity())

	heapRegionPages, _, err := bump.AllocatePages(1)
	if err != nil {
		log.Error("carving byte-heap seed region: %v", err)
		os.Exit(1)
	}
	byteAlloc := byteheap.NewHeap(heapRegionPages[0][:], pageAlloc)

	c := clint.New(cfg.CLINT)
	c.SetFrequency(100) // 100 Hz preemption-free tick, used only to drive §8 scenario 5

	pc := plic.New(cfg.PLIC)
	const bootHart id.HartID = 0
	pc.Initialize(bootHart, append([]uint32{trap.UARTInterruptSource}, trap.VirtIOInterruptSources[:]...))

	block := probeBlockDevice(cfg, log)

	vfsRoot := vfs.New()
	if block != nil {
		fs := ext2.New(&ext2.VirtioSectorReader{Device: block})
		vfsRoot.Mount(vfs.INodeReference{}, fs)
		if root, err := fs.RootInode(); err == nil {
			entries, err := fs.DirectoryEntries(root)
			if err != nil {
				log.Warn("reading root directory: %v", err)
			} else {
				log.Info("root filesystem mounted, %d entries at /", len(entries))
			}
		} else {
			log.Warn("reading root inode: %v", err)
		}
	} else {
		log.Warn("no VirtIO block device found; filesystem unavailable")
	}

	processes := proc.NewTable()
	syscalls := &syscall.Table{Processes: processes}

	dispatcher := &trap.Dispatcher{
		Clint:     c,
		PLIC:      pc,
		UART:      u,
		Scheduler: processes,
		Syscalls:  syscalls,
		Log:       log,
	}
	trap.SetActive(dispatcher)

	if *initPath != "" {
		p, err := loadInitProcess(*initPath, bump, pageAlloc, byteAlloc, u)
		if err != nil {
			log.Error("loading init process: %v", err)
			os.Exit(1)
		}
		processes.Insert(p)
		log.Info("init process loaded: pid=%d entry=%#x", p.PID, p.ProgramCounter)
	}

	bootFrame := &trap.Frame{HartID: bootHart}
	trap.InstallVector(bootFrame)
	c.SetTime(bootHart, 10_000)
	log.Info("trap vector armed, timer scheduled; entering scheduler")

	processes.SwitchToFirst()
}

func loadConfig(path string) (bootcfg.Config, error) {
	if path == "" {
		return bootcfg.Default(), nil
	}
	return bootcfg.Load(path)
}

func parseLevel(s string) klog.Level {
	switch s {
	case "trace":
		return klog.Trace
	case "debug":
		return klog.Debug
	case "warn":
		return klog.Warn
	case "error":
		return klog.Error
	default:
		return klog.Info
	}
}

// probeBlockDevice walks the eight candidate VirtIO MMIO windows (§6) and
// initializes the first one that identifies as a block device.
func probeBlockDevice(cfg bootcfg.Config, log *klog.Logger) *virtio.BlockDevice {
	for _, base := range cfg.VirtIOBases {
		dev, err := virtio.Probe(base)
		if err != nil {
			continue
		}
		if dev.DeviceID() != virtio.DeviceIDBlock {
			continue
		}
		dev.NegotiateFeatures(func(host uint32) uint32 { return 0 }) // no optional features accepted (§9 non-goal: no fs writes)
		bd := virtio.NewBlockDevice(dev)
		err = bd.Initialize(queuePFN)
		if err != nil {
			log.Warn("initializing virtio block device at %#x: %v", base, err)
			continue
		}
		log.Info("virtio block device found at %#x", base)
		return bd
	}
	return nil
}

// queuePFN reports q's own address as its guest-physical page frame
// number — valid because this kernel runs with an identity-mapped
// address space (§4.4), so a Go-heap-resident Queue is already usable
// directly by the device as a DMA target.
func queuePFN(q *virtio.Queue) uint32 {
	return uint32(uintptr(unsafe.Pointer(q)) / mem.PageSize)
}

// loadInitProcess reads an ELF image from path with os.ReadFile (not
// through the mounted filesystem) and builds the first process from it
// (§4.9 "execve"/LoadELF), using the bump allocator for its stack and
// segment pages and the bitmap page allocator for its page-table nodes,
// and wiring the kernel's byte
// heap (C4) in as the scratch allocator backing its console fd's writes.
func loadInitProcess(path string, bump *mem.BumpAllocator, pageAlloc *bitmap.PageAllocator, byteAlloc *byteheap.Heap, u *uart.UART) (*proc.Process, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := elf.Parse(data)
	if err != nil {
		return nil, err
	}

	allocPage := func() (mem.Pa, *sv39.Table, error) {
		pg, err := pageAlloc.Allocate(1)
		if err != nil {
			return 0, nil, err
		}
		pa := mem.Pa(uintptr(unsafe.Pointer(pg)))
		return pa, (*sv39.Table)(unsafe.Pointer(pg)), nil
	}

	const stackPages = 4
	p, err := proc.LoadELF(img, stackPages, bump, allocPage)
	if err != nil {
		return nil, err
	}
	p.SetFile(id.FD(1), proc.NewConsoleFile(u, byteAlloc))
	return p, nil
}
