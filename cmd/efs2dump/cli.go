package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qcefs/efs2dump/pkg/efs2"
	"github.com/qcefs/efs2dump/pkg/elog"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool

	flagECC          bool
	flagECCOffset    string
	flagECCSpareType string
	flagECCBBM       string
	flagECCWidth     int
	flagECCAlgo      string

	flagStartOffset string
	flagPartition   string
	flagBlockSize   string

	flagSuperblock string
	flagCEFS       bool
	flagEncoding   string
	flagNoLog      bool
	flagNumbers    string
)

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{}

		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			logger.DisableTTY = true
			color.NoColor = true
		} else {
			color.Output = colorable.NewColorableStdout()
		}

		logrus.SetFormatter(logger)
		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}

	addDumpFlags(dumpCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(fixdumpCmd)
	rootCmd.AddCommand(partsplitCmd)
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "efs2dump",
	Short: "A toolkit for reading Qualcomm EFS2 raw flash dumps",
	Long: `efs2dump mounts Qualcomm EFS2 (and CEFS factory gang image) flash
dumps read from disk and either drops into an interactive shell over
the mounted filesystem, or extracts its entire contents into a zip
archive.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View CLI version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\nRef: %s\nReleased: %s\n", release, commit, date)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump IN_FILE [OUT_FILE.zip]",
	Short: "Mount an EFS2/CEFS image and explore it or zip its contents",
	Args:  cobra.RangeArgs(1, 2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if flagStartOffset != "" && flagPartition != "" {
			return fmt.Errorf("--start-offset and --partition are mutually exclusive")
		}
		switch flagECCSpareType {
		case "riff", "standard", "qcom":
		default:
			return fmt.Errorf("%w: --ecc-spare-type must be one of riff, standard, qcom", efs2.ErrBadArgument)
		}
		switch flagECCWidth {
		case 8, 16:
		default:
			return fmt.Errorf("%w: --ecc-width must be 8 or 16", efs2.ErrBadArgument)
		}
		switch flagECCAlgo {
		case "rs", "hamming20", "hamming20_bitpack":
		default:
			return fmt.Errorf("%w: --ecc-algo must be one of rs, hamming20, hamming20_bitpack", efs2.ErrBadArgument)
		}
		if err := setNumbersMode(flagNumbers); err != nil {
			return err
		}
		if flagEncoding != "" && efs2.Encodings(flagEncoding) == nil {
			return fmt.Errorf("%w: unknown --encoding %q (try latin-1 or utf-16-le)", efs2.ErrBadArgument, flagEncoding)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fs, err := mountFromArgs(args[0])
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
		defer fs.Close()

		if len(args) == 2 {
			if err := dumpZip(fs, args[0], args[1]); err != nil {
				log.Errorf("%v", err)
				os.Exit(1)
			}
			return
		}
		if err := runShell(fs, args[0]); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	},
}

func addDumpFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&flagECC, "ecc", "e", false, "run image through the ECC engine before mounting")
	f.StringVar(&flagECCOffset, "ecc-spare-offset", "0", "spare offset (riff) or logical page size (standard); 0x prefix for hex")
	f.StringVar(&flagECCSpareType, "ecc-spare-type", "riff", "riff, standard, or qcom")
	f.StringVar(&flagECCBBM, "ecc-bbm", "5", "bad-block-marker byte offset within the spare area; 0x prefix for hex")
	f.IntVar(&flagECCWidth, "ecc-width", 16, "NAND page width in bits (8 or 16)")
	f.StringVar(&flagECCAlgo, "ecc-algo", "rs", "rs, hamming20, or hamming20_bitpack")

	f.StringVarP(&flagStartOffset, "start-offset", "s", "", "byte offset of the EFS2/CEFS volume; default autodetects (0x prefix for hex)")
	f.StringVarP(&flagPartition, "partition", "p", "", "partition name to use as the start offset, read from the device's partition table")
	f.StringVar(&flagBlockSize, "block-size", "0x20000", "block size used when scanning for the partition table")

	f.StringVar(&flagSuperblock, "superblock", "-1", "force a specific superblock candidate by scan order; default picks the newest valid one")
	f.BoolVarP(&flagCEFS, "cefs", "f", false, "mount as a CEFS factory gang image instead of EFS2")
	f.StringVarP(&flagEncoding, "encoding", "c", "latin-1", "text encoding for directory entry names: latin-1 or utf-16-le")
	f.BoolVar(&flagNoLog, "no-log", false, "skip journal/log replay (last resort if a volume won't otherwise mount)")
	f.StringVar(&flagNumbers, "numbers", "short", "size formatting: short, dec, or hex")
}

// intorhex parses a decimal or 0x-prefixed hexadecimal string, mirroring
// the reference tool's intorhex argparse type.
func intorhex(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return v, err
	}
	return strconv.ParseInt(s, 10, 64)
}

var numbersMode int

func setNumbersMode(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "short":
		numbersMode = 0
	case "dec", "decimal":
		numbersMode = 1
	case "hex", "hexadecimal":
		numbersMode = 2
	default:
		return fmt.Errorf("numbers mode must be one of 'dec', 'hex', or 'short'")
	}
	return nil
}

// printableSize formats a byte count per numbersMode, grounded on the
// disk-image tooling's PrintableSize helper.
type printableSize int64

func (c printableSize) String() string {
	switch numbersMode {
	case 1:
		return fmt.Sprintf("%d", int64(c))
	case 2:
		return fmt.Sprintf("%#x", int64(c))
	default:
		x := int64(c)
		if x == 0 {
			return "0"
		}
		suffixes := []string{"", "K", "M", "G"}
		units := 0
		for x%1024 == 0 && units < len(suffixes)-1 {
			x /= 1024
			units++
		}
		return fmt.Sprintf("%d%s", x, suffixes[units])
	}
}

// eccSpareTypeOf maps a CLI spare-type name to its efs2.SpareType.
func eccSpareTypeOf(s string) efs2.SpareType {
	switch s {
	case "standard":
		return efs2.SpareStandard
	case "qcom":
		return efs2.SpareQCOM2K
	default:
		return efs2.SpareRIFF
	}
}

// eccAlgoOf maps a CLI algo name to its efs2.EccAlgo.
func eccAlgoOf(s string) efs2.EccAlgo {
	switch s {
	case "hamming20":
		return efs2.NewEccHamming20()
	case "hamming20_bitpack":
		return efs2.NewEccHamming20Bitpack()
	default:
		return efs2.NewEccRS()
	}
}

// encodingOf resolves a --encoding name to a decoder, returning nil
// (efs2.Open/efs2.OpenCEFS then default to Latin-1) for an empty name.
// dumpCmd's PreRunE rejects any other unrecognized name before this is
// ever reached.
func encodingOf(name string) func([]byte) string {
	if name == "" {
		return nil
	}
	return efs2.Encodings(name)
}
