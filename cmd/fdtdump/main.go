// Command fdtdump prints the structure of a flattened device tree blob:
// its node hierarchy, property names, and (with -x) a hex dump of each
// property's raw payload.
package main

import (
	"encoding/hex"
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
	var hexPayloads bool

	cmd := &cobra.Command{
		Use:   "fdtdump <file.dtb>",
		Short: "Print the structure of a flattened device tree blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			return runDump(cmd, args[0], logger, hexPayloads)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log recoverable parse irregularities")
	cmd.Flags().BoolVarP(&hexPayloads, "hex", "x", false, "hex-dump each property's payload")
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

// treeLogger adapts a zerolog.Logger to the fdt.Logger sink the parser
// reports recoverable irregularities to.
type treeLogger struct {
	z zerolog.Logger
}

func (l treeLogger) OnError(msg string) { l.z.Warn().Msg(msg) }

func runDump(cmd *cobra.Command, path string, z zerolog.Logger, hexPayloads bool) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	tree, err := fdt.Parse(blob, treeLogger{z: z})
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	printNode(out, tree.Root(), 0, hexPayloads)
	return nil
}

func printNode(out interface{ Write([]byte) (int, error) }, n *fdt.Node, depth int, hexPayloads bool) {
	indent := func(extra int) string {
		b := make([]byte, (depth+extra)*2)
		for i := range b {
			b[i] = ' '
		}
		return string(b)
	}

	name := n.Name
	if name == "" {
		name = "/"
	}
	stat := fdt.Stat(n)
	fmt.Fprintf(out, "%s%s {\n", indent(0), name)
	fmt.Fprintf(out, "%s// %d children, %d properties\n", indent(1), stat.NumChild, stat.NumProp)

	// Node/property lists are stored in reverse of on-wire order (see
	// fdt.Node doc comment); reverse them again here so the dump reads in
	// the same order the blob declared them.
	var props []*fdt.Property
	for p := n.FirstProp; p != nil; p = p.NextSiblingProp {
		props = append(props, p)
	}
	for i := len(props) - 1; i >= 0; i-- {
		p := props[i]
		fmt.Fprintf(out, "%s%s;\n", indent(1), p.Name)
		if hexPayloads && len(p.Payload) > 0 {
			dumper := hex.Dumper(out)
			_, _ = dumper.Write(p.Payload)
			_ = dumper.Close()
		}
	}

	var children []*fdt.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for i := len(children) - 1; i >= 0; i-- {
		printNode(out, children[i], depth+1, hexPayloads)
	}

	fmt.Fprintf(out, "%s};\n", indent(0))
}
