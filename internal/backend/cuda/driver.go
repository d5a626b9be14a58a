//go:build linux

package cuda

// CUDA driver API bindings via purego: libcuda is opened at run time with
// dlopen, so the package builds without cgo or a CUDA toolkit.

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// CUresult is a CUDA driver status code.
type CUresult int32

const (
	cudaSuccess             CUresult = 0
	cudaErrorInvalidValue   CUresult = 1
	cudaErrorOutOfMemory    CUresult = 2
	cudaErrorNotInitialized CUresult = 3
	cudaErrorNoDevice       CUresult = 100
	cudaErrorInvalidImage   CUresult = 200
	cudaErrorInvalidContext CUresult = 201
	cudaErrorInvalidPTX     CUresult = 218
	cudaErrorInvalidHandle  CUresult = 400
	cudaErrorNotFound       CUresult = 500
	cudaErrorIllegalAddress CUresult = 700
	cudaErrorLaunchOutOfRes CUresult = 701
	cudaErrorLaunchFailed   CUresult = 719
)

var resultNames = map[CUresult]string{
	cudaErrorInvalidValue:   "INVALID_VALUE",
	cudaErrorOutOfMemory:    "OUT_OF_MEMORY",
	cudaErrorNotInitialized: "NOT_INITIALIZED",
	cudaErrorNoDevice:       "NO_DEVICE",
	cudaErrorInvalidImage:   "INVALID_IMAGE",
	cudaErrorInvalidContext: "INVALID_CONTEXT",
	cudaErrorInvalidPTX:     "INVALID_PTX",
	cudaErrorInvalidHandle:  "INVALID_HANDLE",
	cudaErrorNotFound:       "NOT_FOUND",
	cudaErrorIllegalAddress: "ILLEGAL_ADDRESS",
	cudaErrorLaunchOutOfRes: "LAUNCH_OUT_OF_RESOURCES",
	cudaErrorLaunchFailed:   "LAUNCH_FAILED",
}

func (r CUresult) Error() string {
	if r == cudaSuccess {
		return "CUDA_SUCCESS"
	}
	if name, ok := resultNames[r]; ok {
		return fmt.Sprintf("CUDA_ERROR_%s (%d)", name, r)
	}
	return fmt.Sprintf("CUDA_ERROR(%d)", r)
}

// Device attributes.
const (
	attrMaxThreadsPerBlock     = 1
	attrMaxGridDimX            = 5
	attrMultiprocessorCount    = 16
	attrComputeCapabilityMajor = 75
	attrComputeCapabilityMinor = 76
)

const streamNonBlocking = 1

var (
	driverOnce sync.Once
	driverErr  error

	cuInit               func(flags uint32) CUresult
	cuDeviceGetCount     func(count *int32) CUresult
	cuDeviceGet          func(device *int32, ordinal int32) CUresult
	cuDeviceGetName      func(name *byte, n int32, dev int32) CUresult
	cuDeviceGetAttribute func(pi *int32, attrib int32, dev int32) CUresult
	cuDeviceTotalMem     func(bytes *uint64, dev int32) CUresult

	cuCtxCreate     func(pctx *uintptr, flags uint32, dev int32) CUresult
	cuCtxSetCurrent func(ctx uintptr) CUresult
	cuCtxDestroy    func(ctx uintptr) CUresult

	cuMemAlloc        func(dptr *uintptr, bytesize uint64) CUresult
	cuMemFree         func(dptr uintptr) CUresult
	cuMemcpyHtoDAsync func(dst uintptr, src unsafe.Pointer, n uint64, stream uintptr) CUresult
	cuMemcpyDtoH      func(dst unsafe.Pointer, src uintptr, n uint64) CUresult

	cuModuleLoadData    func(module *uintptr, image unsafe.Pointer) CUresult
	cuModuleGetFunction func(hfunc *uintptr, hmod uintptr, name *byte) CUresult
	cuModuleUnload      func(hmod uintptr) CUresult

	cuOccupancyMaxPotentialBlockSize func(
		minGridSize, blockSize *int32,
		f uintptr,
		blockSizeToDynamicSMemSize uintptr,
		dynamicSMemSize uint64,
		blockSizeLimit int32,
	) CUresult
	cuLaunchKernel func(
		f uintptr,
		gridDimX, gridDimY, gridDimZ uint32,
		blockDimX, blockDimY, blockDimZ uint32,
		sharedMemBytes uint32,
		hStream uintptr,
		kernelParams unsafe.Pointer,
		extra unsafe.Pointer,
	) CUresult

	cuStreamCreate      func(phStream *uintptr, flags uint32) CUresult
	cuStreamSynchronize func(hStream uintptr) CUresult
	cuStreamDestroy     func(hStream uintptr) CUresult
)

// initDriver loads libcuda and registers all function pointers.
func initDriver() error {
	driverOnce.Do(func() {
		var lib uintptr
		lib, driverErr = purego.Dlopen("libcuda.so.1", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if driverErr != nil {
			lib, driverErr = purego.Dlopen("libcuda.so", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
			if driverErr != nil {
				driverErr = errors.Wrap(driverErr, "cuda: cannot load libcuda.so (is the NVIDIA driver installed?)")
				return
			}
		}

		purego.RegisterLibFunc(&cuInit, lib, "cuInit")
		purego.RegisterLibFunc(&cuDeviceGetCount, lib, "cuDeviceGetCount")
		purego.RegisterLibFunc(&cuDeviceGet, lib, "cuDeviceGet")
		purego.RegisterLibFunc(&cuDeviceGetName, lib, "cuDeviceGetName")
		purego.RegisterLibFunc(&cuDeviceGetAttribute, lib, "cuDeviceGetAttribute")
		purego.RegisterLibFunc(&cuDeviceTotalMem, lib, "cuDeviceTotalMem_v2")
		purego.RegisterLibFunc(&cuCtxCreate, lib, "cuCtxCreate_v2")
		purego.RegisterLibFunc(&cuCtxSetCurrent, lib, "cuCtxSetCurrent")
		purego.RegisterLibFunc(&cuCtxDestroy, lib, "cuCtxDestroy_v2")
		purego.RegisterLibFunc(&cuMemAlloc, lib, "cuMemAlloc_v2")
		purego.RegisterLibFunc(&cuMemFree, lib, "cuMemFree_v2")
		purego.RegisterLibFunc(&cuMemcpyHtoDAsync, lib, "cuMemcpyHtoDAsync_v2")
		purego.RegisterLibFunc(&cuMemcpyDtoH, lib, "cuMemcpyDtoH_v2")
		purego.RegisterLibFunc(&cuModuleLoadData, lib, "cuModuleLoadData")
		purego.RegisterLibFunc(&cuModuleGetFunction, lib, "cuModuleGetFunction")
		purego.RegisterLibFunc(&cuModuleUnload, lib, "cuModuleUnload")
		purego.RegisterLibFunc(&cuOccupancyMaxPotentialBlockSize, lib, "cuOccupancyMaxPotentialBlockSize")
		purego.RegisterLibFunc(&cuLaunchKernel, lib, "cuLaunchKernel")
		purego.RegisterLibFunc(&cuStreamCreate, lib, "cuStreamCreate")
		purego.RegisterLibFunc(&cuStreamSynchronize, lib, "cuStreamSynchronize")
		purego.RegisterLibFunc(&cuStreamDestroy, lib, "cuStreamDestroy_v2")

		if r := cuInit(0); r != cudaSuccess {
			driverErr = errors.Wrap(r, "cuda: cuInit")
		}
	})
	return driverErr
}

func check(r CUresult, op string) error {
	if r != cudaSuccess {
		return errors.Wrap(r, "cuda: "+op)
	}
	return nil
}

// cString returns a NUL-terminated copy of s for driver calls.
func cString(s string) []byte {
	return append([]byte(s), 0)
}

// goString trims a NUL-terminated buffer.
func goString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
