package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/born-ml/gpubcast/backend"
	"github.com/born-ml/gpubcast/engine"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/kernelgen"
	"github.com/born-ml/gpubcast/shape"
	"github.com/born-ml/gpubcast/tensor"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

func loadConfig(args *Arguments) (engine.Config, error) {
	cfg, err := engine.LoadConfig(args.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if args.Backend != "" {
		cfg.Backend = args.Backend
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	return cfg, cfg.Validate()
}

// Info prints the registered backends and the device cfg selects.
func Info(w io.Writer, cfg engine.Config) error {
	backends := backend.List()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Backend", "Priority", "Available"})
	table.SetCaption(true, fmt.Sprintf("%d backends", len(backends)))
	table.SetBorder(false)
	for _, b := range backends {
		table.Append([]string{b.Name, strconv.Itoa(b.Priority), strconv.FormatBool(b.Available)})
	}
	table.Render()

	eng, err := engine.Open(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()
	fmt.Fprintf(w, "\nselected: %s\ndevice:   %s\n", eng.Backend(), eng.Device())
	return nil
}

// ListKernels prints the kernel variants matching args.
func ListKernels(w io.Writer, args *KernelsArguments) error {
	variants := kernel.Variants()
	if args.DType != "" {
		dt, err := dtype.Parse(args.DType)
		if err != nil {
			return err
		}
		variants = kernel.Family(dt)
	}
	var op kernel.Op
	if args.Op != "" {
		var err error
		if op, err = kernel.ParseOp(args.Op); err != nil {
			return err
		}
	}
	for _, v := range variants {
		if args.Op != "" && v.Op != op {
			continue
		}
		fmt.Fprintln(w, v.Name())
	}
	return nil
}

// Generate writes kernel sources and prints the written paths.
func Generate(w io.Writer, cfg engine.Config, args *GenArguments) error {
	target, err := kernelgen.ParseTarget(args.Target)
	if err != nil {
		return err
	}
	dir := args.Out
	if dir == "" {
		dir = cfg.KernelCacheDir
	}
	files, err := kernelgen.WriteDir(dir, target, kernel.Variants())
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
	return nil
}

// Run evaluates args.Op on inputs filled with 1, 2, 3, ... (a) and
// 10, 20, 30, ... (b), or alternating truth values for bool.
func Run(w io.Writer, cfg engine.Config, args *RunArguments) error {
	op, err := kernel.ParseOp(args.Op)
	if err != nil {
		return err
	}
	dt, err := dtype.Parse(args.DType)
	if err != nil {
		return err
	}
	if !kernel.Supports(op, dt) {
		return errors.Wrapf(kernel.ErrNotFound, "%s is not defined for %s", op, dt)
	}
	if _, err := shape.Broadcast(args.A, args.B); err != nil {
		return err
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	switch dt {
	case dtype.Float32:
		return runFloat[float32](w, eng, op, args)
	case dtype.Float64:
		return runFloat[float64](w, eng, op, args)
	default:
		return runBool(w, eng, op, args)
	}
}

func runFloat[T tensor.Float](w io.Writer, eng *engine.Engine, op kernel.Op, args *RunArguments) error {
	a, b, err := upload(eng, args, func(i int) T { return T(i + 1) }, func(i int) T { return T(10 * (i + 1)) })
	if err != nil {
		return err
	}
	var fn func(a, b *tensor.Device[T]) (*tensor.Device[T], error)
	switch op {
	case kernel.Add:
		fn = tensor.Add[T]
	case kernel.Sub:
		fn = tensor.Sub[T]
	case kernel.Mul:
		fn = tensor.Mul[T]
	case kernel.Div:
		fn = tensor.Div[T]
	case kernel.Eq:
		out, err := tensor.Equal(a, b)
		if err != nil {
			return err
		}
		return report(w, eng, op, args, out)
	}
	out, err := fn(a, b)
	if err != nil {
		return err
	}
	return report(w, eng, op, args, out)
}

func runBool(w io.Writer, eng *engine.Engine, op kernel.Op, args *RunArguments) error {
	a, b, err := upload(eng, args, func(i int) bool { return i%2 == 0 }, func(i int) bool { return i%3 == 0 })
	if err != nil {
		return err
	}
	fn := tensor.Or
	switch op {
	case kernel.Eq:
		fn = tensor.Equal[bool]
	case kernel.And:
		fn = tensor.And
	}
	out, err := fn(a, b)
	if err != nil {
		return err
	}
	return report(w, eng, op, args, out)
}

func upload[T tensor.Element](eng *engine.Engine, args *RunArguments, fa, fb func(int) T) (*tensor.Device[T], *tensor.Device[T], error) {
	mk := func(s shape.Shape, f func(int) T) (*tensor.Device[T], error) {
		h := tensor.Zeros[T](s)
		for i := range h.Data() {
			h.Data()[i] = f(i)
		}
		return h.IntoDevice(eng)
	}
	a, err := mk(args.A, fa)
	if err != nil {
		return nil, nil, err
	}
	b, err := mk(args.B, fb)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func report[O tensor.Element](w io.Writer, eng *engine.Engine, op kernel.Op, args *RunArguments, out *tensor.Device[O]) error {
	h, err := out.IntoHost()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s %s -> %s on %s\n", args.A, op.Symbol(), args.B, h.Shape(), eng.Backend())
	fmt.Fprintln(w, h)
	fmt.Fprintln(w, eng.Stats())
	return nil
}
