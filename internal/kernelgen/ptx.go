package kernelgen

import (
	"strings"
	"text/template"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
)

// PTXVersion and PTXTarget are the ISA version and minimum architecture of
// the generated module; the driver JIT-compiles it for the actual device.
const (
	PTXVersion = "7.0"
	PTXTarget  = "sm_52"
)

const ptxHeader = `//
// Generated by gpubcast kernelgen. DO NOT EDIT.
//
.version {{.Version}}
.target {{.Target}}
.address_size 64
`

// Parameters follow the launch order: pointer, length and strides of a, b,
// then the output. Strides are u64 arrays of the kernel rank.
const ptxEntry = `
.visible .entry {{.Name}}(
	.param .u64 a,
	.param .u64 a_len,
	.param .align 8 .b8 a_strides[{{.StrideBytes}}],
	.param .u64 b,
	.param .u64 b_len,
	.param .align 8 .b8 b_strides[{{.StrideBytes}}],
	.param .u64 o,
	.param .u64 o_len,
	.param .align 8 .b8 o_strides[{{.StrideBytes}}]
)
{
	.reg .pred %p<3>;
	.reg .b32 %r<4>;
	.reg .b16 %rs<4>;
	.reg .b64 %rd<16>;
{{- if .FloatReg}}
	.reg {{.FloatReg}} %{{.FloatPrefix}}<4>;
{{- end}}

	mov.u32 %r1, %ctaid.x;
	mov.u32 %r2, %ntid.x;
	mov.u32 %r3, %tid.x;
	mul.wide.u32 %rd1, %r1, %r2;
	cvt.u64.u32 %rd2, %r3;
	add.u64 %rd1, %rd1, %rd2;
	ld.param.u64 %rd3, [o_len];
	setp.ge.u64 %p1, %rd1, %rd3;
	@%p1 bra $L_done;

	mov.u64 %rd4, %rd1;
	mov.u64 %rd5, 0;
	mov.u64 %rd6, 0;
{{- range .Axes}}
	// axis {{.}}
	ld.param.u64 %rd7, [o_strides+{{mul8 .}}];
	ld.param.u64 %rd8, [a_strides+{{mul8 .}}];
	ld.param.u64 %rd9, [b_strides+{{mul8 .}}];
	div.u64 %rd10, %rd4, %rd7;
	mul.lo.u64 %rd11, %rd10, %rd7;
	sub.u64 %rd4, %rd4, %rd11;
	mad.lo.u64 %rd5, %rd10, %rd8, %rd5;
	mad.lo.u64 %rd6, %rd10, %rd9, %rd6;
{{- end}}

	ld.param.u64 %rd12, [a];
	cvta.to.global.u64 %rd12, %rd12;
	mad.lo.u64 %rd12, %rd5, {{.InSize}}, %rd12;
	ld.param.u64 %rd13, [b];
	cvta.to.global.u64 %rd13, %rd13;
	mad.lo.u64 %rd13, %rd6, {{.InSize}}, %rd13;
	ld.param.u64 %rd14, [o];
	cvta.to.global.u64 %rd14, %rd14;
	mad.lo.u64 %rd14, %rd1, {{.OutSize}}, %rd14;
{{.Body}}
$L_done:
	ret;
}
`

var (
	ptxHeaderTmpl = template.Must(template.New("ptx_header").Parse(ptxHeader))
	ptxEntryTmpl  = template.Must(template.New("ptx_entry").Funcs(template.FuncMap{
		"mul8": func(i int) int { return i * 8 },
	}).Parse(ptxEntry))
)

type ptxEntryData struct {
	Name        string
	StrideBytes int
	Axes        []int
	FloatReg    string
	FloatPrefix string
	InSize      int
	OutSize     int
	Body        string
}

// PTXModule returns one PTX module containing an entry per variant.
func PTXModule(variants []kernel.Variant) (string, error) {
	header, err := render(ptxHeaderTmpl, struct{ Version, Target string }{PTXVersion, PTXTarget})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, v := range variants {
		entry, err := PTXEntry(v)
		if err != nil {
			return "", err
		}
		sb.WriteString(entry)
	}
	return sb.String(), nil
}

// PTXEntry returns the PTX entry point of a single variant.
func PTXEntry(v kernel.Variant) (string, error) {
	if !kernel.Supports(v.Op, v.DType) || v.Rank < 1 {
		return "", errors.Wrapf(ErrUnsupported, "ptx: %s", v)
	}

	data := ptxEntryData{
		Name:        v.Name(),
		StrideBytes: 8 * v.Rank,
		Axes:        axes(v.Rank),
		InSize:      v.DType.Size(),
		OutSize:     v.OutDType().Size(),
	}

	body, err := ptxBody(v, &data)
	if err != nil {
		return "", err
	}
	data.Body = body
	return render(ptxEntryTmpl, data)
}

// ptxBody emits loads from %rd12/%rd13, the op, and the store to %rd14.
func ptxBody(v kernel.Variant, data *ptxEntryData) (string, error) {
	var lines []string
	emit := func(s string) { lines = append(lines, "\t"+s) }

	switch v.DType {
	case dtype.Float32, dtype.Float64:
		ty, reg := "f32", "f"
		if v.DType == dtype.Float64 {
			ty, reg = "f64", "fd"
		}
		data.FloatReg, data.FloatPrefix = "."+ty, reg

		emit("ld.global." + ty + " %" + reg + "1, [%rd12];")
		emit("ld.global." + ty + " %" + reg + "2, [%rd13];")
		switch v.Op {
		case kernel.Add:
			emit("add.rn." + ty + " %" + reg + "3, %" + reg + "1, %" + reg + "2;")
		case kernel.Sub:
			emit("sub.rn." + ty + " %" + reg + "3, %" + reg + "1, %" + reg + "2;")
		case kernel.Mul:
			emit("mul.rn." + ty + " %" + reg + "3, %" + reg + "1, %" + reg + "2;")
		case kernel.Div:
			emit("div.rn." + ty + " %" + reg + "3, %" + reg + "1, %" + reg + "2;")
		case kernel.Eq:
			emit("setp.eq." + ty + " %p2, %" + reg + "1, %" + reg + "2;")
			emit("selp.u16 %rs3, 1, 0, %p2;")
			emit("st.global.u8 [%rd14], %rs3;")
			return strings.Join(lines, "\n"), nil
		default:
			return "", errors.Wrapf(ErrUnsupported, "ptx: %s", v)
		}
		emit("st.global." + ty + " [%rd14], %" + reg + "3;")

	case dtype.Bool:
		emit("ld.global.u8 %rs1, [%rd12];")
		emit("ld.global.u8 %rs2, [%rd13];")
		switch v.Op {
		case kernel.Eq:
			emit("setp.eq.u16 %p2, %rs1, %rs2;")
			emit("selp.u16 %rs3, 1, 0, %p2;")
		case kernel.And:
			emit("and.b16 %rs3, %rs1, %rs2;")
		case kernel.Or:
			emit("or.b16 %rs3, %rs1, %rs2;")
		default:
			return "", errors.Wrapf(ErrUnsupported, "ptx: %s", v)
		}
		emit("st.global.u8 [%rd14], %rs3;")

	default:
		return "", errors.Wrapf(ErrUnsupported, "ptx: %s", v)
	}
	return strings.Join(lines, "\n"), nil
}
