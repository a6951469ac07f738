// Package vfs is the virtual filesystem layer (§4.10): it assigns device
// ids to mounted filesystems and routes every operation to the right one
// by inode reference. Grounded in qor-core's interfaces/fs/vfs.rs,
// recast without async/await (this kernel's cooperative executor takes
// the place of Rust's Future machinery; see internal/executor).
package vfs

import (
	"errors"
	"sync"
)

// INodeReference names an inode on a specific mounted device (§3).
type INodeReference struct {
	Device uint32
	Inode  uint64
}

// INodeData is the subset of inode metadata the kernel surfaces (§4.10).
type INodeData struct {
	Mode       uint16
	LinkCount  int
	UID        uint16
	GID        uint16
	Size       uint64
	AccessTime uint64
	ModifyTime uint64
	ChangeTime uint64
	Reference  INodeReference
}

// DirectoryEntry names one child of a directory inode.
type DirectoryEntry struct {
	Inode INodeReference
	Name  string
}

// ErrNoMountedFilesystem is returned when the VFS has nothing mounted at
// the root.
var ErrNoMountedFilesystem = errors.New("vfs: no mounted filesystem")

// ErrBadInode is returned when an INodeReference names a device that
// isn't mounted.
var ErrBadInode = errors.New("vfs: inode references an unmounted device")

// FileSystem is the operation set every mountable filesystem (in
// practice, ext2) implements (§4.10's FileSystem trait).
type FileSystem interface {
	RootInode() (INodeReference, error)
	INodeData(ref INodeReference) (INodeData, error)
	DirectoryEntries(ref INodeReference) ([]DirectoryEntry, error)
	ReadToData(ref INodeReference) ([]byte, error)
}

// Mountable additionally accepts the device id the VFS assigns it at
// mount time.
type Mountable interface {
	FileSystem
	SetDeviceID(id uint32)
}

// VirtualFileSystem routes operations to whichever device owns the
// referenced inode, and resolves submounts transparently (§4.10). It does
// not walk paths; callers address everything by INodeReference.
type VirtualFileSystem struct {
	mu      sync.RWMutex
	devices []Mountable
	mounts  map[INodeReference]int // mount point inode -> index into devices
}

// New returns a VirtualFileSystem with nothing mounted.
func New() *VirtualFileSystem {
	return &VirtualFileSystem{mounts: make(map[INodeReference]int)}
}

// Mount attaches fs at the given mount point inode, assigning it the next
// device id.
func (v *VirtualFileSystem) Mount(at INodeReference, fs Mountable) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fs.SetDeviceID(uint32(len(v.devices) + 1))
	v.devices = append(v.devices, fs)
	v.mounts[at] = len(v.devices) - 1
}

func (v *VirtualFileSystem) resolve(ref INodeReference) (FileSystem, INodeReference, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if idx, ok := v.mounts[ref]; ok {
		dev := v.devices[idx]
		root, err := dev.RootInode()
		return dev, root, err
	}
	if ref.Device == 0 {
		return nil, ref, ErrBadInode
	}
	idx := int(ref.Device) - 1
	if idx < 0 || idx >= len(v.devices) {
		return nil, ref, ErrBadInode
	}
	return v.devices[idx], ref, nil
}

// RootInode implements FileSystem by delegating to the first mounted
// device.
func (v *VirtualFileSystem) RootInode() (INodeReference, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.devices) == 0 {
		return INodeReference{}, ErrNoMountedFilesystem
	}
	return v.devices[0].RootInode()
}

// INodeData implements FileSystem.
func (v *VirtualFileSystem) INodeData(ref INodeReference) (INodeData, error) {
	dev, resolved, err := v.resolve(ref)
	if err != nil {
		return INodeData{}, err
	}
	return dev.INodeData(resolved)
}

// DirectoryEntries implements FileSystem.
func (v *VirtualFileSystem) DirectoryEntries(ref INodeReference) ([]DirectoryEntry, error) {
	dev, resolved, err := v.resolve(ref)
	if err != nil {
		return nil, err
	}
	return dev.DirectoryEntries(resolved)
}

// ReadToData implements FileSystem.
func (v *VirtualFileSystem) ReadToData(ref INodeReference) ([]byte, error) {
	dev, resolved, err := v.resolve(ref)
	if err != nil {
		return nil, err
	}
	return dev.ReadToData(resolved)
}
