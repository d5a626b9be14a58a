package kernelgen

import (
	"text/template"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
)

// WorkgroupSize is the fixed workgroup size of generated WGSL shaders.
const WorkgroupSize = 256

// WGSL has no f64 in core and no bool in storage buffers: float32 maps to
// array<f32> and bool to array<u32> holding 0 or 1.
const wgslShader = `// Generated by gpubcast kernelgen. DO NOT EDIT.
// {{.Name}}
@group(0) @binding(0) var<storage, read> a: array<{{.In}}>;
@group(0) @binding(1) var<storage, read> b: array<{{.In}}>;
@group(0) @binding(2) var<storage, read_write> o: array<{{.Out}}>;

struct Params {
    out_len: u32,
    a_len: u32,
    b_len: u32,
{{- range .Axes}}
    o_stride_{{.}}: u32,
    a_stride_{{.}}: u32,
    b_stride_{{.}}: u32,
{{- end}}
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{.WorkgroupSize}})
fn main(
    @builtin(global_invocation_id) global_id: vec3<u32>,
    @builtin(num_workgroups) num_wg: vec3<u32>,
) {
    let i = global_id.y * num_wg.x * {{.WorkgroupSize}}u + global_id.x;
    if (i >= params.out_len) {
        return;
    }

    var rem = i;
    var ai = 0u;
    var bi = 0u;
    var c = 0u;
{{- range .Axes}}
    c = rem / params.o_stride_{{.}};
    rem = rem - c * params.o_stride_{{.}};
    ai = ai + c * params.a_stride_{{.}};
    bi = bi + c * params.b_stride_{{.}};
{{- end}}

    o[i] = {{.Expr}};
}
`

var wgslTmpl = template.Must(template.New("wgsl").Parse(wgslShader))

type wgslData struct {
	Name          string
	In, Out       string
	Axes          []int
	WorkgroupSize int
	Expr          string
}

func wgslSupported(v kernel.Variant) bool {
	return kernel.Supports(v.Op, v.DType) && v.DType != dtype.Float64 && v.Rank >= 1
}

// WGSLShader returns the compute shader of v.
func WGSLShader(v kernel.Variant) (string, error) {
	if !wgslSupported(v) {
		return "", errors.Wrapf(ErrUnsupported, "wgsl: %s", v)
	}

	data := wgslData{
		Name:          v.Name(),
		In:            WGSLElement(v.DType),
		Out:           WGSLElement(v.OutDType()),
		Axes:          axes(v.Rank),
		WorkgroupSize: WorkgroupSize,
	}

	switch v.Op {
	case kernel.Add, kernel.Sub, kernel.Mul, kernel.Div:
		data.Expr = "a[ai] " + v.Op.Symbol() + " b[bi]"
	case kernel.Eq:
		data.Expr = "select(0u, 1u, a[ai] == b[bi])"
	case kernel.And, kernel.Or:
		data.Expr = "a[ai] " + v.Op.Symbol() + " b[bi]"
	default:
		return "", errors.Wrapf(ErrUnsupported, "wgsl: %s", v)
	}
	return render(wgslTmpl, data)
}

// WGSLElement returns the storage element type used for dt.
func WGSLElement(dt dtype.DataType) string {
	if dt == dtype.Bool {
		return "u32"
	}
	return "f32"
}

// WGSLParamsSize returns the byte size of the uniform Params struct of a
// rank-r shader, padded to 16 bytes.
func WGSLParamsSize(rank int) int {
	n := (3 + 3*rank) * 4
	return (n + 15) &^ 15
}

// WGSLParams encodes the uniform block: out_len, a_len, b_len, then for each
// axis the output, a and b strides.
func WGSLParams(outLen, aLen, bLen int, outStrides, as, bs []int) []uint32 {
	words := make([]uint32, 0, WGSLParamsSize(len(outStrides))/4)
	//nolint:gosec // G115: lengths and strides are bounded by checkU32 in the caller
	words = append(words, uint32(outLen), uint32(aLen), uint32(bLen))
	for k := range outStrides {
		//nolint:gosec // G115: see above
		words = append(words, uint32(outStrides[k]), uint32(as[k]), uint32(bs[k]))
	}
	for len(words)*4 < WGSLParamsSize(len(outStrides)) {
		words = append(words, 0)
	}
	return words
}
