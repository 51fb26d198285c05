// Command vpilot-read prints the telemetry stored in collected streams and
// optionally exports their frames as bitmaps.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("vpilot-read", pflag.ContinueOnError)
	opts := readOptions{}
	fs.IntVar(&opts.Width, "width", 480, "Frame width in pixels")
	fs.IntVar(&opts.Height, "height", 320, "Frame height in pixels")
	fs.StringVar(&opts.ExportDir, "export", "", "Directory to write frames to as BMP")
	fs.BoolVar(&opts.Flip, "flip", false, "Flip exported frames vertically")
	fs.BoolVarP(&opts.Quiet, "quiet", "q", false, "Only print the summary")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: vpilot-read [flags] <stream.pz>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	failed := false
	for _, path := range fs.Args() {
		sum, err := readStream(path, opts, os.Stdout)
		fmt.Fprintf(os.Stdout, "%s: %s\n", path, sum)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
