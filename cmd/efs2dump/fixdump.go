package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

var (
	fixdumpSpareOffset = "0"
	fixdumpSpareType   string
	fixdumpBBM         string
	fixdumpWidth       int
	fixdumpAlgo        string
)

var fixdumpCmd = &cobra.Command{
	Use:   "fixdump IN_FILE OUT_FILE [SPARE_OFFSET]",
	Short: "Linearize an ECC/spare-interleaved NAND dump into a plain flat image",
	Args:  cobra.RangeArgs(2, 3),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		switch fixdumpSpareType {
		case "riff", "standard", "qcom":
		default:
			return efs2.ErrBadArgument
		}
		switch fixdumpWidth {
		case 8, 16:
		default:
			return efs2.ErrBadArgument
		}
		switch fixdumpAlgo {
		case "rs", "hamming20", "hamming20_bitpack":
		default:
			return efs2.ErrBadArgument
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		spareOffsetArg := fixdumpSpareOffset
		if len(args) == 3 {
			spareOffsetArg = args[2]
		}
		if err := fixdump(args[0], args[1], spareOffsetArg); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	},
}

func fixdump(inFile, outFile, spareOffsetArg string) error {
	offset, err := intorhex(spareOffsetArg)
	if err != nil {
		return err
	}
	bbm, err := intorhex(fixdumpBBM)
	if err != nil {
		return err
	}

	r, err := efs2.OpenECCReader(inFile, int(offset), eccSpareTypeOf(fixdumpSpareType), int(bbm), fixdumpWidth, eccAlgoOf(fixdumpAlgo), log)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(outFile)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 0x200)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func init() {
	f := fixdumpCmd.Flags()
	f.StringVarP(&fixdumpSpareType, "spare-type", "s", "riff", "riff, standard, or qcom")
	f.StringVarP(&fixdumpBBM, "bbm", "b", "5", "bad-block-marker byte offset; 0x prefix for hex")
	f.IntVarP(&fixdumpWidth, "width", "w", 16, "NAND page width in bits (8 or 16)")
	f.StringVarP(&fixdumpAlgo, "ecc-algo", "e", "rs", "rs, hamming20, or hamming20_bitpack")
}
