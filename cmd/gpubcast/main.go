// Command gpubcast inspects backends, lists and generates kernels, and
// evaluates broadcast elementwise operations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AppVersion is injected at build time.
var AppVersion = "v0.1.0-dev"

func main() {
	args, err := ParseArguments(os.Args, AppVersion)
	if err != nil {
		if errors.Is(err, ErrMissingCommand) || errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logrus.Error(err)
		os.Exit(1)
	}

	if args.Version != nil {
		fmt.Println("gpubcast", AppVersion)
		return
	}
	if args.Kernels != nil {
		exit(ListKernels(os.Stdout, args.Kernels))
		return
	}

	cfg, err := loadConfig(args)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := cfg.Level(); err == nil {
		logrus.SetLevel(lvl)
	}

	switch {
	case args.Info != nil:
		err = Info(os.Stdout, cfg)
	case args.Gen != nil:
		err = Generate(os.Stdout, cfg, args.Gen)
	case args.Run != nil:
		err = Run(os.Stdout, cfg, args.Run)
	}
	exit(err)
}

func exit(err error) {
	if err != nil {
		logrus.Error(err)
		os.Exit(3)
	}
}
