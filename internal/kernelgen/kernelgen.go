// Package kernelgen generates accelerator source for the elementwise kernel
// variants: one PTX module holding every CUDA entry point, and one WGSL
// compute shader per WebGPU variant.
//
// Every generated kernel follows the same body: threads at or past the
// output length return, the rest decompose their global index along the
// output strides (most significant axis first), accumulate one offset per
// operand through that operand's strides, apply the op and store out[i].
package kernelgen

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
)

// Target is a kernel source language.
type Target string

// Supported targets.
const (
	PTX  Target = "ptx"
	WGSL Target = "wgsl"
)

// ErrUnsupported is returned for a variant a target cannot express.
var ErrUnsupported = errors.New("kernelgen: unsupported variant")

// ParseTarget parses "ptx" or "wgsl".
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case PTX, WGSL:
		return Target(s), nil
	default:
		return "", errors.Errorf("kernelgen: unknown target %q", s)
	}
}

// Supported reports whether target can express v.
func Supported(target Target, v kernel.Variant) bool {
	switch target {
	case PTX:
		return true
	case WGSL:
		return wgslSupported(v)
	default:
		return false
	}
}

// Filter returns the variants target can express.
func Filter(target Target, variants []kernel.Variant) []kernel.Variant {
	out := make([]kernel.Variant, 0, len(variants))
	for _, v := range variants {
		if Supported(target, v) {
			out = append(out, v)
		}
	}
	return out
}

// WriteDir writes the sources for variants into dir and returns the file
// paths. PTX produces a single kernels.ptx; WGSL one <name>.wgsl per
// supported variant.
func WriteDir(dir string, target Target, variants []kernel.Variant) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "kernelgen: create %s", dir)
	}

	switch target {
	case PTX:
		src, err := PTXModule(variants)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, "kernels.ptx")
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			return nil, errors.Wrapf(err, "kernelgen: write %s", path)
		}
		return []string{path}, nil

	case WGSL:
		var paths []string
		for _, v := range Filter(WGSL, variants) {
			src, err := WGSLShader(v)
			if err != nil {
				return nil, err
			}
			path := filepath.Join(dir, v.Name()+".wgsl")
			if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
				return nil, errors.Wrapf(err, "kernelgen: write %s", path)
			}
			paths = append(paths, path)
		}
		return paths, nil

	default:
		return nil, errors.Errorf("kernelgen: unknown target %q", target)
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "kernelgen: render %s", t.Name())
	}
	return buf.String(), nil
}

// axes returns 0..rank-1 for range loops in templates.
func axes(rank int) []int {
	out := make([]int, rank)
	for i := range out {
		out[i] = i
	}
	return out
}
