// Command dbgbtree inspects the rbyd B-trees inside a block device image:
// it decodes committed entries, resolves ids to leaves, and renders the
// implied search-tree shapes. The on-disk format lives entirely in the rbyd
// package; this command only formats what the engine reports.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/spf13/cobra"

	"github.com/CasualCCodeReviewers/littlefs/rbyd"
)

var errCorrupt = errors.New("b-tree is corrupt")

// intValue is a numeric flag accepting the same base prefixes as the
// address grammar (0x, 0o, 0b; no prefix means decimal). Offsets render in
// hex, the way they appear in dumps.
type intValue struct {
	p   *int
	hex bool
}

func newIntValue(p *int, hex bool) *intValue { return &intValue{p: p, hex: hex} }

func (v *intValue) Set(s string) error {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return err
	}
	*v.p = int(n)
	return nil
}

func (v *intValue) String() string {
	if v.p == nil {
		return "0"
	}
	if v.hex {
		return "0x" + strconv.FormatInt(int64(*v.p), 16)
	}
	return strconv.Itoa(*v.p)
}

func (v *intValue) Type() string { return "int" }

type options struct {
	blockSize      int
	trunk          int
	colorMode      string
	raw            bool
	device         bool
	noTruncate     bool
	inner          bool
	tree           bool
	btree          bool
	depth          int
	errorOnCorrupt bool
	logLevel       string
}

// parseRoots flattens the root address arguments into one mirror set, the
// way redundant root blocks are written. Each address keeps the trunk
// suffix it named, per mirror; an explicit --trunk wins over all of them.
func parseRoots(args []string, trunk int) (rbyd.Addr, error) {
	addr := rbyd.Addr{Blocks: []uint32{0}}
	if len(args) > 0 {
		addr.Blocks = nil
		anyTrunk := false
		for _, arg := range args {
			a, err := rbyd.ParseAddr(arg)
			if err != nil {
				return rbyd.Addr{}, err
			}
			addr.Blocks = append(addr.Blocks, a.Blocks...)
			for range a.Blocks {
				addr.Trunks = append(addr.Trunks, a.Trunk)
			}
			anyTrunk = anyTrunk || a.Trunk != 0
		}
		if !anyTrunk {
			addr.Trunks = nil
		}
	}
	if trunk != 0 {
		addr.Trunk = trunk
		addr.Trunks = nil
	}
	return addr, nil
}

func openBTree(
	cmd *cobra.Command, disk string, args []string, o *options,
) (*rbyd.BTree, func() error, error) {
	addr, err := parseRoots(args, o.trunk)
	if err != nil {
		return nil, nil, err
	}

	dev, err := rbyd.OpenDeviceFile(disk)
	if err != nil {
		return nil, nil, err
	}

	var ropts []rbyd.ReaderOption
	if o.blockSize > 0 {
		ropts = append(ropts, rbyd.WithBlockSize(o.blockSize))
	}
	log := logger.Sugar.WithServiceName("dbgbtree")
	r, err := rbyd.NewReader(log, dev, ropts...)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	bt, err := r.OpenBTree(cmd.Context(), addr)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return bt, dev.Close, nil
}

func run(cmd *cobra.Command, args []string, o *options) error {
	bt, closeDev, err := openBTree(cmd, args[0], args[1:], o)
	if err != nil {
		return err
	}
	defer closeDev()

	rn := newRenderer(cmd.OutOrStdout(), bt, o)
	corrupted, err := rn.dump(cmd.Context())
	if err != nil {
		return err
	}
	if corrupted && o.errorOnCorrupt {
		return errCorrupt
	}
	return nil
}

func newRootCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dbgbtree disk [roots...]",
		Short: "Debug rbyd B-trees",
		Long: "Decode and render the rbyd B-tree rooted at the given block " +
			"addresses of a block device image.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.New(o.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, o)
		},
	}

	cmd.PersistentFlags().VarP(newIntValue(&o.blockSize, false), "block-size", "B",
		"block size in bytes, defaults to the whole device")
	cmd.PersistentFlags().Var(newIntValue(&o.trunk, true), "trunk",
		"use this offset as the trunk of the tree")
	cmd.PersistentFlags().VarP(newIntValue(&o.depth, false), "depth", "Z",
		"depth of tree to show")
	cmd.PersistentFlags().StringVar(&o.logLevel, "loglevel", "NOOP",
		"log level (NOOP, DEBUG, INFO, ...)")
	cmd.Flags().StringVar(&o.colorMode, "color", "auto",
		"when to use terminal colors (never, always, auto)")
	cmd.Flags().BoolVarP(&o.raw, "raw", "r", false,
		"show the raw data including tag encodings")
	cmd.Flags().BoolVarP(&o.device, "device", "x", false,
		"show the device-side representation of tags")
	cmd.Flags().BoolVarP(&o.noTruncate, "no-truncate", "T", false,
		"don't truncate, show the full contents")
	cmd.Flags().BoolVarP(&o.inner, "inner", "i", false,
		"show inner branches")
	cmd.Flags().BoolVarP(&o.tree, "tree", "t", false,
		"show the underlying rbyd trees")
	cmd.Flags().BoolVarP(&o.btree, "btree", "b", false,
		"show the underlying B-tree")
	cmd.Flags().BoolVarP(&o.errorOnCorrupt, "error-on-corrupt", "e", false,
		"error if the B-tree is corrupt")

	cmd.AddCommand(newServeCmd(o))
	return cmd
}

func main() {
	o := &options{}
	// re-initialized with the parsed --loglevel before any command runs
	logger.New("NOOP")
	err := newRootCmd(o).Execute()
	logger.OnExit()
	if err == nil {
		return
	}
	if errors.Is(err, errCorrupt) {
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, "dbgbtree:", err)
	os.Exit(1)
}
