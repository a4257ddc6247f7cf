//go:build fdtmutate

// Command fdtedit applies small mutations to a flattened device tree blob
// and writes the re-serialized result. It links against the library's
// fdtmutate build tag, so it is only buildable when that tag is set.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scigolib/fdt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var outPath string
	var setStatus string

	cmd := &cobra.Command{
		Use:   "fdtedit <file.dtb> <node-path>",
		Short: "Edit a node's status property and re-serialize the blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			z := newLogger(verbose)
			return runEdit(args[0], args[1], outPath, setStatus, z)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log recoverable parse irregularities")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to overwriting the input file)")
	cmd.Flags().StringVar(&setStatus, "set-status", "okay", "value to write into the node's status property")
	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

type treeLogger struct{ z zerolog.Logger }

func (l treeLogger) OnError(msg string) { l.z.Warn().Msg(msg) }

func runEdit(inPath, nodePath, outPath, status string, z zerolog.Logger) error {
	blob, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	tree, err := fdt.Parse(blob, treeLogger{z: z})
	if err != nil {
		return fmt.Errorf("parsing %s: %w", inPath, err)
	}

	n, err := tree.FindOrCreateNode(nodePath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", nodePath, err)
	}

	p := n.FindProp("status")
	if p == nil {
		p, err = fdt.CreateProp(tree, n, "status")
		if err != nil {
			return fmt.Errorf("creating status property on %s: %w", nodePath, err)
		}
	}
	fdt.WriteString(tree, p, status)

	out, err := tree.Serialize(0)
	if err != nil {
		return fmt.Errorf("serializing result: %w", err)
	}

	if outPath == "" {
		outPath = inPath
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	z.Info().Str("node", nodePath).Str("status", status).Str("out", outPath).Msg("updated device tree")
	return nil
}
