package bitmap

import "unsafe"

func sizeOf[T any](v T) uintptr { return unsafe.Sizeof(v) }

func ptrOf[T any](v *T) unsafe.Pointer { return unsafe.Pointer(v) }
