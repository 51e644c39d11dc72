package tool

import (
	"flag"
	"os"

	"github.com/moyoez/imagerestore/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	return SetFlagsOn(flag.CommandLine, nil)
}

// SetFlagsOn registers the flags on fs and parses args (os.Args[1:] when nil).
func SetFlagsOn(fs *flag.FlagSet, args []string) types.Config {
	var cfg types.Config
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	fs.StringVar(&cfg.UseListen, "useListen", "", "override control API listen address")
	fs.IntVar(&cfg.UseBufferSize, "useBufferSize", 0, "override copy buffer size in bytes")
	fs.BoolVar(&cfg.SkipNotify, "skipNotify", false, "if true, skip unix socket notifications")
	fs.BoolVar(&cfg.DryWipe, "dryWipe", false, "log the wipe command instead of running it")
	fs.BoolVar(&cfg.Serve, "serve", false, "run the control API")
	fs.StringVar(&cfg.Remote, "remote", "", "address of a running daemon, e.g. 127.0.0.1:53318")
	fs.StringVar(&cfg.Source, "source", "", "disk image to restore")
	fs.StringVar(&cfg.Target, "target", "", "block device to restore onto")
	fs.BoolVar(&cfg.Force, "force", false, "restore even if the image is much smaller than the target")
	fs.StringVar(&cfg.Cancel, "cancel", "", "cancel the session with this id (with -remote)")
	fs.StringVar(&cfg.Status, "status", "", "print the session with this id (with -remote)")
	if args == nil {
		args = os.Args[1:]
	}
	fs.Parse(args)
	return cfg
}
