package main

import (
	"strconv"
	"strings"

	"github.com/born-ml/gpubcast/shape"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Arguments is the parsed command line. Exactly one command field is set.
type Arguments struct {
	ConfigPath string
	Backend    string
	LogLevel   string

	Version *struct{}
	Info    *struct{}
	Kernels *KernelsArguments
	Gen     *GenArguments
	Run     *RunArguments
}

// KernelsArguments filters the kernel listing.
type KernelsArguments struct {
	DType string
	Op    string
}

// GenArguments selects the generated source language and directory.
type GenArguments struct {
	Target string
	Out    string
}

// RunArguments describes a demo evaluation.
type RunArguments struct {
	Op    string
	DType string
	A, B  shape.Shape
}

var (
	// ErrMissingCommand is returned when no command was given.
	ErrMissingCommand = errors.New("missing command")
	// ErrMissingArgument is returned when a required flag is absent.
	ErrMissingArgument = errors.New("missing argument")
)

// ParseArguments parses argv. Usage errors are already printed.
func ParseArguments(argv []string, appVersion string) (*Arguments, error) {
	var args Arguments
	app := cli.NewApp()
	app.Name = "gpubcast"
	app.Usage = "Broadcast elementwise tensor kernels on CUDA, WebGPU or the host"
	app.Version = appVersion
	app.UseShortOptionHandling = true

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config,c", Usage: "YAML configuration file"},
		cli.StringFlag{Name: "backend,b", Usage: "host, cuda, webgpu or auto"},
		cli.StringFlag{Name: "log-level", Usage: "logrus level (debug, info, warn, error)"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "version",
			Usage: "Show version",
			Action: func(c *cli.Context) error {
				args.Version = &struct{}{}
				return nil
			},
		},
		{
			Name:  "info",
			Usage: "List backends and open the selected device",
			Action: func(c *cli.Context) error {
				args.Info = &struct{}{}
				return nil
			},
		},
		{
			Name:  "kernels",
			Usage: "List kernel variants",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "dtype,d", Usage: "Only variants of this element type (f32, f64, bool)"},
				cli.StringFlag{Name: "op,o", Usage: "Only variants of this operation"},
			},
			Action: func(c *cli.Context) error {
				args.Kernels = &KernelsArguments{DType: c.String("dtype"), Op: c.String("op")}
				return nil
			},
		},
		{
			Name:  "gen",
			Usage: "Generate kernel sources",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "target,t", Value: "ptx", Usage: "ptx or wgsl"},
				cli.StringFlag{Name: "out", Usage: "Output directory (default: kernel_cache_dir)"},
			},
			Action: func(c *cli.Context) error {
				args.Gen = &GenArguments{Target: c.String("target"), Out: c.String("out")}
				return nil
			},
		},
		{
			Name:      "run",
			Usage:     "Evaluate one operation on generated inputs",
			ArgsUsage: "--op add --a 3,1 --b 1,3",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "op,o", Value: "add", Usage: "add, sub, mul, div, eq, and, or"},
				cli.StringFlag{Name: "dtype,d", Value: "f32", Usage: "f32, f64 or bool"},
				cli.StringFlag{Name: "a", Usage: "Shape of the left operand, e.g. 3,1 (?n marks a runtime axis)"},
				cli.StringFlag{Name: "b", Usage: "Shape of the right operand"},
			},
			Action: func(c *cli.Context) error {
				if !c.IsSet("a") || !c.IsSet("b") {
					return errors.Wrap(ErrMissingArgument, "run needs --a and --b")
				}
				a, err := ParseShape(c.String("a"))
				if err != nil {
					return err
				}
				b, err := ParseShape(c.String("b"))
				if err != nil {
					return err
				}
				args.Run = &RunArguments{Op: c.String("op"), DType: c.String("dtype"), A: a, B: b}
				return nil
			},
		},
	}
	app.Before = func(c *cli.Context) error {
		args.ConfigPath = c.GlobalString("config")
		args.Backend = c.GlobalString("backend")
		args.LogLevel = c.GlobalString("log-level")
		return nil
	}
	app.Action = func(c *cli.Context) error {
		_ = cli.ShowAppHelp(c)
		return ErrMissingCommand
	}
	err := app.Run(argv)
	return &args, err
}

// ParseShape parses a comma separated list of axis sizes. An empty string
// is a scalar; a leading '?' marks a runtime axis.
func ParseShape(s string) (shape.Shape, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "()" {
		return shape.Scalar(), nil
	}
	parts := strings.Split(strings.Trim(s, "()"), ",")
	out := make(shape.Shape, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		runtime := strings.HasPrefix(p, "?")
		n, err := strconv.Atoi(strings.TrimPrefix(p, "?"))
		if err != nil {
			return nil, errors.Wrapf(shape.ErrInvalidShape, "axis %q", p)
		}
		if runtime {
			out = append(out, shape.Runtime(n))
		} else {
			out = append(out, shape.Known(n))
		}
	}
	return out, nil
}
