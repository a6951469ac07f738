package vfs

import "testing"

// fakeFS is a tiny in-memory FileSystem double standing in for ext2, so
// VirtualFileSystem's routing can be tested without a real disk image.
type fakeFS struct {
	device  uint32
	root    INodeReference
	entries map[INodeReference][]DirectoryEntry
	data    map[INodeReference][]byte
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		entries: make(map[INodeReference][]DirectoryEntry),
		data:    make(map[INodeReference][]byte),
	}
}

func (f *fakeFS) SetDeviceID(id uint32) { f.device = id }

func (f *fakeFS) RootInode() (INodeReference, error) {
	return INodeReference{Device: f.device, Inode: f.root.Inode}, nil
}

func (f *fakeFS) INodeData(ref INodeReference) (INodeData, error) {
	return INodeData{Reference: ref}, nil
}

func (f *fakeFS) DirectoryEntries(ref INodeReference) ([]DirectoryEntry, error) {
	return f.entries[ref], nil
}

func (f *fakeFS) ReadToData(ref INodeReference) ([]byte, error) {
	if b, ok := f.data[ref]; ok {
		return b, nil
	}
	return nil, ErrBadInode
}

func TestMountAssignsSequentialDeviceIDs(t *testing.T) {
	v := New()
	a, b := newFakeFS(), newFakeFS()
	v.Mount(INodeReference{}, a)
	v.Mount(INodeReference{Inode: 99}, b)

	if a.device != 1 {
		t.Fatalf("first mount got device id %d, want 1", a.device)
	}
	if b.device != 2 {
		t.Fatalf("second mount got device id %d, want 2", b.device)
	}
}

func TestRootInodeDelegatesToFirstMountedDevice(t *testing.T) {
	v := New()
	fs := newFakeFS()
	fs.root = INodeReference{Inode: 2}
	v.Mount(INodeReference{}, fs)

	root, err := v.RootInode()
	if err != nil {
		t.Fatalf("RootInode: %v", err)
	}
	if root.Device != 1 || root.Inode != 2 {
		t.Fatalf("RootInode() = %+v, want {Device:1 Inode:2}", root)
	}
}

func TestRootInodeWithNothingMountedReturnsErrNoMountedFilesystem(t *testing.T) {
	v := New()
	if _, err := v.RootInode(); err != ErrNoMountedFilesystem {
		t.Fatalf("RootInode() with nothing mounted = %v, want ErrNoMountedFilesystem", err)
	}
}

func TestReadToDataRoutesByDeviceID(t *testing.T) {
	v := New()
	a, b := newFakeFS(), newFakeFS()
	v.Mount(INodeReference{}, a)
	v.Mount(INodeReference{Inode: 1}, b)

	want := []byte("hello from device 2")
	ref := INodeReference{Device: 2, Inode: 5}
	b.data[ref] = want

	got, err := v.ReadToData(ref)
	if err != nil {
		t.Fatalf("ReadToData: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("ReadToData() = %q, want %q", got, want)
	}
}

func TestResolveUnmountedDeviceReturnsErrBadInode(t *testing.T) {
	v := New()
	v.Mount(INodeReference{}, newFakeFS())

	if _, err := v.INodeData(INodeReference{Device: 7, Inode: 1}); err != ErrBadInode {
		t.Fatalf("INodeData on unmounted device = %v, want ErrBadInode", err)
	}
	if _, err := v.INodeData(INodeReference{Device: 0, Inode: 1}); err != ErrBadInode {
		t.Fatalf("INodeData with device 0 and no matching mount = %v, want ErrBadInode", err)
	}
}

func TestDirectoryEntriesRoutesThroughSubmount(t *testing.T) {
	v := New()
	root := newFakeFS()
	v.Mount(INodeReference{}, root)

	sub := newFakeFS()
	mountPoint := INodeReference{Device: 1, Inode: 42}
	v.Mount(mountPoint, sub)

	sub.root = INodeReference{Inode: 2}
	subRoot := INodeReference{Device: 2, Inode: 2}
	sub.entries[subRoot] = []DirectoryEntry{{Name: "file.txt", Inode: INodeReference{Device: 2, Inode: 3}}}

	// Resolving the mount point inode itself should route into the
	// submounted filesystem's root, not the parent's entry for it.
	entries, err := v.DirectoryEntries(mountPoint)
	if err != nil {
		t.Fatalf("DirectoryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "file.txt" {
		t.Fatalf("DirectoryEntries(mountPoint) = %+v, want one entry named file.txt", entries)
	}
}
