package main

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

var partsplitCmd = &cobra.Command{
	Use:   "partsplit IN_FILE OUT_FOLDER BLOCK_SIZE",
	Short: "Split a raw flash dump into one file per partition-table entry",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		if err := partsplit(args[0], args[1], args[2]); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	},
}

func partsplit(inFile, outFolder, blockSizeArg string) error {
	blockSize, err := intorhex(blockSizeArg)
	if err != nil {
		return err
	}

	in, err := os.Open(inFile)
	if err != nil {
		return err
	}
	defer in.Close()

	pt, err := efs2.LookupPartitionTable(in, blockSize)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outFolder, 0755); err != nil {
		return err
	}

	for _, p := range pt.Partitions {
		if err := splitOnePartition(in, outFolder, blockSize, p); err != nil {
			return err
		}
	}
	return nil
}

func splitOnePartition(in *os.File, outFolder string, blockSize int64, p efs2.Partition) error {
	if _, err := in.Seek(p.Start, io.SeekStart); err != nil {
		return err
	}

	var data []byte
	var err error

	if (p.Name == "EFS2" || p.Name == "EFS2APPS") && p.Length < 0 {
		data, err = ioutil.ReadAll(in)
		if err != nil {
			return err
		}
		size, serr := efs2.ComputeEFS2Size(data)
		if serr != nil {
			return serr
		}
		if size < int64(len(data)) {
			data = data[:size]
		}
	} else if p.Length < 0 {
		data, err = ioutil.ReadAll(in)
		if err != nil {
			return err
		}
	} else {
		data = make([]byte, p.Length)
		if _, err := io.ReadFull(in, data); err != nil && err != io.ErrUnexpectedEOF {
			return err
		}
	}

	out, err := os.Create(filepath.Join(outFolder, p.Name+".bin"))
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.Write(data)
	return err
}
