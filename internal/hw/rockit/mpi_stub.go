//go:build !rockit

package rockit

import "github.com/zw326/rk3566/internal/media"

// Builds without the rockit tag carry no vendor SDK. Every MPI entry point
// fails with ErrUnavailable so the caller can switch to the stream sink.

func mpiSysInit() error { return ErrUnavailable }

func mpiSysExit() {}

func mpiVdecCreate(chn int, codec media.Codec, width, height, frameBufCnt int) error {
	return ErrUnavailable
}

func mpiVdecSend(chn int, data []byte, ptsMs int64, width, height int, release func()) error {
	return ErrUnavailable
}

func mpiVdecDestroy(chn int) error { return ErrUnavailable }

func mpiVoCreate(chn, width, height int) error { return ErrUnavailable }

func mpiVoBind(vdecChn, voChn int) error { return ErrUnavailable }

func mpiVoDestroy(chn int) error { return ErrUnavailable }

func mpiAoOpen(dev, sampleRate, channels, bitsPerSample int) error { return ErrUnavailable }

func mpiAoSend(dev int, data []byte, ptsMs int64, sampleRate, channels, bitsPerSample, samples int) error {
	return ErrUnavailable
}

func mpiAoClose(dev int) {}
