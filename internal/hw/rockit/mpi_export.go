//go:build rockit

package rockit

/*
#include "rk_type.h"
#include "rk_common.h"
*/
import "C"

import "unsafe"

// goExtBufferFree is the MB free callback installed on every external
// buffer handed to the decoder. It runs on an MPI thread.
//
//export goExtBufferFree
func goExtBufferFree(opaque unsafe.Pointer) C.RK_S32 {
	extBuffers.retire(uint64(uintptr(opaque)))
	return C.RK_SUCCESS
}
