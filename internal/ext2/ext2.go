package ext2

import (
	"errors"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/vfs"
	"github.com/AshTS/QorKernel/internal/virtio"
	"golang.org/x/sync/singleflight"
)

// SectorSize is the block device's fixed transfer granularity (§4.10
// BLOCK_SIZE=512), independent of the filesystem's own block size.
const SectorSize = virtio.BlockSize

// SectorReader reads one fixed-size sector by index. VirtioSectorReader
// is the production implementation; tests supply an in-memory one.
type SectorReader interface {
	ReadSector(index uint32, out []byte) error
}

// VirtioSectorReader adapts a virtio.BlockDevice to SectorReader.
type VirtioSectorReader struct {
	Device *virtio.BlockDevice
}

// ReadSector implements SectorReader via a synchronous VirtIO transfer.
func (r *VirtioSectorReader) ReadSector(index uint32, out []byte) error {
	if len(out) != SectorSize {
		return errors.New("ext2: sector buffer must be exactly SectorSize")
	}
	return r.Device.BlockingReadWrite(unsafe.Pointer(&out[0]), SectorSize, uint64(index), false)
}

var (
	// ErrNotFound is returned when a path component or inode doesn't
	// exist.
	ErrNotFound = errors.New("ext2: not found")
	// ErrNotDirectory is returned when a directory operation targets a
	// non-directory inode.
	ErrNotDirectory = errors.New("ext2: not a directory")
)

// FileSystem is a read-only ext2 filesystem mounted over a SectorReader
// (grounded in qor-core's Ext2FileSystem<E>).
type FileSystem struct {
	reader   SectorReader
	deviceID uint32

	sbGroup singleflight.Group
	super   *SuperBlock
}

// New constructs an ext2 FileSystem over reader. The superblock is read
// lazily on first use.
func New(reader SectorReader) *FileSystem {
	return &FileSystem{reader: reader}
}

// SetDeviceID implements vfs.Mountable.
func (fs *FileSystem) SetDeviceID(id uint32) { fs.deviceID = id }

// readBlock assembles one filesystem block (a multiple of SectorSize)
// out of however many sectors it spans (mod.rs read_block/read_blocks).
func (fs *FileSystem) readBlock(blockSize, blockIndex uint32) ([]byte, error) {
	sectorsPerBlock := blockSize / SectorSize
	if sectorsPerBlock == 0 {
		sectorsPerBlock = 1
	}
	out := make([]byte, blockSize)
	firstSector := blockIndex * sectorsPerBlock
	for i := uint32(0); i < sectorsPerBlock; i++ {
		if err := fs.reader.ReadSector(firstSector+i, out[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// superBlock returns the cached superblock, reading and parsing it at
// most once concurrently regardless of how many callers race to ask
// (mod.rs read_super_block's mutex-guarded cache, replaced with
// singleflight to avoid its read-then-check race).
func (fs *FileSystem) superBlock() (*SuperBlock, error) {
	if fs.super != nil {
		return fs.super, nil
	}
	v, err, _ := fs.sbGroup.Do("superblock", func() (any, error) {
		if fs.super != nil {
			return fs.super, nil
		}
		block := make([]byte, 1024)
		if err := fs.reader.ReadSector(2, block[0:512]); err != nil {
			return nil, err
		}
		if err := fs.reader.ReadSector(3, block[512:1024]); err != nil {
			return nil, err
		}
		sb, err := ParseSuperBlock(block)
		if err != nil {
			return nil, err
		}
		fs.super = sb
		return sb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SuperBlock), nil
}

// blockGroupDescriptor locates and decodes the descriptor for group.
func (fs *FileSystem) blockGroupDescriptor(group uint32) (BlockGroupDescriptor, error) {
	sb, err := fs.superBlock()
	if err != nil {
		return BlockGroupDescriptor{}, err
	}
	blockSize := sb.BlockSize()
	tableBlock := sb.BlockGroupDescriptorTableIndex()
	entriesPerBlock := blockSize / blockGroupDescriptorSize
	block := tableBlock + group/entriesPerBlock
	offsetInBlock := (group % entriesPerBlock) * blockGroupDescriptorSize

	raw, err := fs.readBlock(blockSize, block)
	if err != nil {
		return BlockGroupDescriptor{}, err
	}
	return ParseBlockGroupDescriptor(raw[offsetInBlock : offsetInBlock+blockGroupDescriptorSize]), nil
}

// getInode locates, reads, and decodes inode number n (1-based, mod.rs
// get_inode).
func (fs *FileSystem) getInode(n uint32) (Inode, error) {
	sb, err := fs.superBlock()
	if err != nil {
		return Inode{}, err
	}
	index := n - 1
	group := index / sb.InodesPerGroup
	indexInGroup := index % sb.InodesPerGroup

	desc, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return Inode{}, err
	}
	blockSize := sb.BlockSize()
	inodeSize := sb.InodeSize()
	inodesPerBlock := blockSize / inodeSize
	block := desc.StartingBlockInode + indexInGroup/inodesPerBlock
	offsetInBlock := (indexInGroup % inodesPerBlock) * inodeSize

	raw, err := fs.readBlock(blockSize, block)
	if err != nil {
		return Inode{}, err
	}
	return ParseInode(raw[offsetInBlock : offsetInBlock+128]), nil
}

// dataBlocks returns the list of filesystem block indices backing an
// inode's data, walking direct pointers and then the single, double,
// and triple indirect pointers in turn. The system this was distilled
// from only ever read BlockPointers[0]; this walks the full chain so
// files and directories larger than one block actually read correctly.
func (fs *FileSystem) dataBlocks(in *Inode, blockSize uint32) ([]uint32, error) {
	pointersPerBlock := blockSize / 4
	var blocks []uint32

	for i := 0; i < inodeDirectPointers; i++ {
		if in.BlockPointers[i] != 0 {
			blocks = append(blocks, in.BlockPointers[i])
		}
	}

	var walkIndirect func(block uint32, depth int) error
	walkIndirect = func(block uint32, depth int) error {
		if block == 0 {
			return nil
		}
		raw, err := fs.readBlock(blockSize, block)
		if err != nil {
			return err
		}
		for i := uint32(0); i < pointersPerBlock; i++ {
			ptr := leUint32(raw[i*4 : i*4+4])
			if ptr == 0 {
				continue
			}
			if depth == 0 {
				blocks = append(blocks, ptr)
			} else if err := walkIndirect(ptr, depth-1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walkIndirect(in.BlockPointers[12], 0); err != nil {
		return nil, err
	}
	if err := walkIndirect(in.BlockPointers[13], 1); err != nil {
		return nil, err
	}
	if err := walkIndirect(in.BlockPointers[14], 2); err != nil {
		return nil, err
	}
	return blocks, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// readInodeData reads and concatenates every block an inode owns,
// trimming the result to the inode's declared size.
func (fs *FileSystem) readInodeData(in *Inode) ([]byte, error) {
	sb, err := fs.superBlock()
	if err != nil {
		return nil, err
	}
	blockSize := sb.BlockSize()
	blocks, err := fs.dataBlocks(in, blockSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(blocks)*int(blockSize))
	for _, b := range blocks {
		data, err := fs.readBlock(blockSize, b)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	size := in.Size(sb.UseExtendedSizes())
	if uint64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

func (fs *FileSystem) inodeRef(n uint32) vfs.INodeReference {
	return vfs.INodeReference{Device: fs.deviceID, Inode: uint64(n)}
}

// RootInode implements vfs.FileSystem.
func (fs *FileSystem) RootInode() (vfs.INodeReference, error) {
	return fs.inodeRef(rootInodeNumber), nil
}

// INodeData implements vfs.FileSystem.
func (fs *FileSystem) INodeData(ref vfs.INodeReference) (vfs.INodeData, error) {
	sb, err := fs.superBlock()
	if err != nil {
		return vfs.INodeData{}, err
	}
	in, err := fs.getInode(uint32(ref.Inode))
	if err != nil {
		return vfs.INodeData{}, err
	}
	return vfs.INodeData{
		Mode:       in.Mode,
		LinkCount:  int(in.HardLinkCount),
		UID:        in.UID,
		GID:        in.GID,
		Size:       in.Size(sb.UseExtendedSizes()),
		AccessTime: uint64(in.AccessTime),
		ModifyTime: uint64(in.ModificationTime),
		ChangeTime: uint64(in.CreationTime),
		Reference:  ref,
	}, nil
}

// DirectoryEntries implements vfs.FileSystem.
func (fs *FileSystem) DirectoryEntries(ref vfs.INodeReference) ([]vfs.DirectoryEntry, error) {
	in, err := fs.getInode(uint32(ref.Inode))
	if err != nil {
		return nil, err
	}
	if !in.IsDirectory() {
		return nil, ErrNotDirectory
	}
	data, err := fs.readInodeData(&in)
	if err != nil {
		return nil, err
	}
	raw := ParseDirectoryEntries(data)
	entries := make([]vfs.DirectoryEntry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, vfs.DirectoryEntry{Inode: fs.inodeRef(e.Inode), Name: e.Name})
	}
	return entries, nil
}

// ReadToData implements vfs.FileSystem.
func (fs *FileSystem) ReadToData(ref vfs.INodeReference) ([]byte, error) {
	in, err := fs.getInode(uint32(ref.Inode))
	if err != nil {
		return nil, err
	}
	return fs.readInodeData(&in)
}
