//go:build rockit

package rockit

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo LDFLAGS: -lrockit

#include <stdint.h>
#include <stdlib.h>
#include <string.h>

#include "rk_mpi_sys.h"
#include "rk_mpi_vdec.h"
#include "rk_mpi_vo.h"
#include "rk_mpi_ao.h"
#include "rk_mpi_mb.h"

extern RK_S32 goExtBufferFree(void *opaque);

static RK_S32 extBufferFreeBridge(void *opaque) {
	return goExtBufferFree(opaque);
}

// createExtBuffer wraps a host buffer in an MB block without copying. The
// MPI invokes the free callback once its own reference count drops.
static RK_S32 createExtBuffer(MB_BLK *blk, RK_U8 *vaddr, RK_U32 size, RK_U64 opaque) {
	MB_EXT_CONFIG_S cfg;
	memset(&cfg, 0, sizeof(MB_EXT_CONFIG_S));
	cfg.pFreeCB = extBufferFreeBridge;
	cfg.pOpaque = (void *)(uintptr_t)opaque;
	cfg.pu8VirAddr = vaddr;
	cfg.u32Size = size;
	return RK_MPI_SYS_CreateMB(blk, &cfg);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/zw326/rk3566/internal/media"
)

func mpiErr(call string, ret C.int) error {
	return fmt.Errorf("rockit: %s failed: %d", call, int(ret))
}

func mpiSysInit() error {
	if ret := C.RK_MPI_SYS_Init(); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_SYS_Init", ret)
	}
	return nil
}

func mpiSysExit() {
	C.RK_MPI_SYS_Exit()
}

func mpiVdecCreate(chn int, codec media.Codec, width, height, frameBufCnt int) error {
	var attr C.VDEC_CHN_ATTR_S
	C.memset(unsafe.Pointer(&attr), 0, C.sizeof_VDEC_CHN_ATTR_S)

	switch codec {
	case media.CodecH264:
		attr.enCodecType = C.RK_CODEC_TYPE_H264
	case media.CodecH265:
		attr.enCodecType = C.RK_CODEC_TYPE_H265
	default:
		return fmt.Errorf("rockit: unsupported codec %s", codec)
	}
	attr.enMode = C.VIDEO_MODE_FRAME
	attr.u32PicWidth = C.RK_U32(width)
	attr.u32PicHeight = C.RK_U32(height)
	attr.u32FrameBufCnt = C.RK_U32(frameBufCnt)

	if ret := C.RK_MPI_VDEC_CreateChn(C.VDEC_CHN(chn), &attr); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_VDEC_CreateChn", ret)
	}
	if ret := C.RK_MPI_VDEC_StartRecvStream(C.VDEC_CHN(chn)); ret != C.RK_SUCCESS {
		C.RK_MPI_VDEC_DestroyChn(C.VDEC_CHN(chn))
		return mpiErr("RK_MPI_VDEC_StartRecvStream", ret)
	}
	return nil
}

// mpiVdecSend lends the host buffer to the decoder as an external memory
// block; the decoder references it in place. Its free callback retires the
// registry handle, which unpins the buffer and fires release. On any error
// the handle is disarmed first so ownership stays with the caller. The
// input frame carries no pixel format; only the decoded output has one.
func mpiVdecSend(chn int, data []byte, ptsMs int64, width, height int, release func()) error {
	if len(data) == 0 {
		return fmt.Errorf("rockit: empty stream buffer")
	}

	pinner := new(runtime.Pinner)
	pinner.Pin(&data[0])
	handle := extBuffers.register(pinner.Unpin, release)

	var blk C.MB_BLK
	if ret := C.createExtBuffer(&blk, (*C.RK_U8)(unsafe.Pointer(&data[0])), C.RK_U32(len(data)), C.RK_U64(handle)); ret != C.RK_SUCCESS {
		extBuffers.disarm(handle)
		extBuffers.retire(handle)
		return mpiErr("RK_MPI_SYS_CreateMB", ret)
	}

	var frame C.VIDEO_FRAME_INFO_S
	C.memset(unsafe.Pointer(&frame), 0, C.sizeof_VIDEO_FRAME_INFO_S)
	frame.stVFrame.pMbBlk = blk
	frame.stVFrame.u32Width = C.RK_U32(width)
	frame.stVFrame.u32Height = C.RK_U32(height)
	frame.stVFrame.u32VirWidth = C.RK_U32(width)
	frame.stVFrame.u32VirHeight = C.RK_U32(height)
	frame.stVFrame.u64PTS = C.RK_U64(ptsMs)

	ret := C.RK_MPI_VDEC_SendFrame(C.VDEC_CHN(chn), &frame, -1)
	if ret != C.RK_SUCCESS {
		extBuffers.disarm(handle)
		C.RK_MPI_MB_ReleaseBuffer(blk)
		return mpiErr("RK_MPI_VDEC_SendFrame", ret)
	}
	// Drop this reference; the decoder's keeps the block alive until its
	// free callback fires.
	C.RK_MPI_MB_ReleaseBuffer(blk)
	return nil
}

func mpiVdecDestroy(chn int) error {
	C.RK_MPI_VDEC_StopRecvStream(C.VDEC_CHN(chn))
	if ret := C.RK_MPI_VDEC_DestroyChn(C.VDEC_CHN(chn)); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_VDEC_DestroyChn", ret)
	}
	return nil
}

var voDevNode = C.CString("/dev/dri/card0")

func mpiVoCreate(chn, width, height int) error {
	var attr C.VO_CHN_ATTR_S
	C.memset(unsafe.Pointer(&attr), 0, C.sizeof_VO_CHN_ATTR_S)

	attr.pcDevNode = voDevNode
	attr.enPixFormat = C.RK_FMT_YUV420SP
	attr.u32Width = C.RK_U32(width)
	attr.u32Height = C.RK_U32(height)
	attr.stImgRect.s32X = 0
	attr.stImgRect.s32Y = 0
	attr.stImgRect.u32Width = C.RK_U32(width)
	attr.stImgRect.u32Height = C.RK_U32(height)
	attr.stDispRect.s32X = 0
	attr.stDispRect.s32Y = 0
	attr.stDispRect.u32Width = C.RK_U32(width)
	attr.stDispRect.u32Height = C.RK_U32(height)

	if ret := C.RK_MPI_VO_CreateChn(0, C.VO_CHN(chn), &attr); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_VO_CreateChn", ret)
	}
	return nil
}

func mpiVoBind(vdecChn, voChn int) error {
	var src, dst C.MPP_CHN_S
	src.enModId = C.RK_ID_VDEC
	src.s32DevId = 0
	src.s32ChnId = C.RK_S32(vdecChn)
	dst.enModId = C.RK_ID_VO
	dst.s32DevId = 0
	dst.s32ChnId = C.RK_S32(voChn)

	if ret := C.RK_MPI_SYS_Bind(&src, &dst); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_SYS_Bind", ret)
	}
	return nil
}

func mpiVoDestroy(chn int) error {
	if ret := C.RK_MPI_VO_DisableChn(0, C.VO_CHN(chn)); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_VO_DisableChn", ret)
	}
	if ret := C.RK_MPI_VO_DestroyChn(0, C.VO_CHN(chn)); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_VO_DestroyChn", ret)
	}
	return nil
}

func mpiAoOpen(dev, sampleRate, channels, bitsPerSample int) error {
	var attr C.AO_CHN_ATTR_S
	C.memset(unsafe.Pointer(&attr), 0, C.sizeof_AO_CHN_ATTR_S)

	if bitsPerSample == 16 {
		attr.enSampleFormat = C.RK_SAMPLE_FMT_S16
	} else {
		attr.enSampleFormat = C.RK_SAMPLE_FMT_S32
	}
	attr.u32Channels = C.RK_U32(channels)
	attr.u32SampleRate = C.RK_U32(sampleRate)
	attr.u32NbSamples = 1024

	if ret := C.RK_MPI_AO_SetChnAttr(C.AUDIO_DEV(dev), 0, &attr); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_AO_SetChnAttr", ret)
	}
	if ret := C.RK_MPI_AO_EnableChn(C.AUDIO_DEV(dev), 0); ret != C.RK_SUCCESS {
		return mpiErr("RK_MPI_AO_EnableChn", ret)
	}
	return nil
}

func mpiAoSend(dev int, data []byte, ptsMs int64, sampleRate, channels, bitsPerSample, samples int) error {
	mb := C.RK_MPI_MB_CreateBuffer(C.RK_U32(len(data)), C.RK_FALSE)
	if mb == nil {
		return fmt.Errorf("rockit: RK_MPI_MB_CreateBuffer failed for %d bytes", len(data))
	}
	C.memcpy(C.RK_MPI_MB_GetPtr(mb), unsafe.Pointer(&data[0]), C.size_t(len(data)))

	var frame C.AUDIO_FRAME_S
	C.memset(unsafe.Pointer(&frame), 0, C.sizeof_AUDIO_FRAME_S)
	frame.u32Len = C.RK_U32(len(data))
	frame.u64TimeStamp = C.RK_U64(ptsMs)
	if bitsPerSample == 16 {
		frame.enSampleFormat = C.RK_SAMPLE_FMT_S16
	} else {
		frame.enSampleFormat = C.RK_SAMPLE_FMT_S32
	}
	frame.u32Channels = C.RK_U32(channels)
	frame.u32SampleRate = C.RK_U32(sampleRate)
	frame.u32Samples = C.RK_U32(samples)
	frame.pMbBlk = mb

	ret := C.RK_MPI_AO_SendFrame(C.AUDIO_DEV(dev), 0, &frame, -1)
	if ret != C.RK_SUCCESS {
		C.RK_MPI_MB_ReleaseBuffer(mb)
		return mpiErr("RK_MPI_AO_SendFrame", ret)
	}
	C.RK_MPI_MB_ReleaseBuffer(mb)
	return nil
}

func mpiAoClose(dev int) {
	C.RK_MPI_AO_DisableChn(C.AUDIO_DEV(dev), 0)
}
