package main

import (
	"fmt"
	"io"
	"os"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

// lookupPartitionStart scans in for a partition table and
// returns the named partition's start/end byte offsets.
func lookupPartitionStart(in io.Reader, blockSize int64, name string) (start, end int64, err error) {
	pt, err := efs2.LookupPartitionTable(in, blockSize)
	if err != nil {
		return 0, 0, err
	}
	return pt.Lookup(name)
}

// mountFromArgs opens inFilename per the current flag set and mounts
// it as either a CEFS gang image or an EFS2 volume.
func mountFromArgs(inFilename string) (*efs2.FS, error) {
	blockSize, err := intorhex(flagBlockSize)
	if err != nil {
		return nil, fmt.Errorf("--block-size: %w", err)
	}

	startOffset := int64(-1)
	if flagStartOffset != "" {
		startOffset, err = intorhex(flagStartOffset)
		if err != nil {
			return nil, fmt.Errorf("--start-offset: %w", err)
		}
	}

	endOffset := int64(-1)

	if flagPartition != "" {
		f, err := os.Open(inFilename)
		if err != nil {
			return nil, err
		}
		startOffset, endOffset, err = lookupPartitionStart(f, blockSize, flagPartition)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	superblockIndex := -1
	if flagSuperblock != "" {
		sb, err := intorhex(flagSuperblock)
		if err != nil {
			return nil, fmt.Errorf("--superblock: %w", err)
		}
		superblockIndex = int(sb)
	}

	if flagCEFS {
		if startOffset < 0 {
			startOffset = 0
		}
		f, err := os.Open(inFilename)
		if err != nil {
			return nil, err
		}
		return efs2.OpenCEFS(f, f, startOffset, encodingOf(flagEncoding))
	}

	var image io.ReadSeeker
	var closer io.Closer

	if flagECC {
		eccOffset, err := intorhex(flagECCOffset)
		if err != nil {
			return nil, fmt.Errorf("--ecc-spare-offset: %w", err)
		}
		eccBBM, err := intorhex(flagECCBBM)
		if err != nil {
			return nil, fmt.Errorf("--ecc-bbm: %w", err)
		}

		img, err := efs2.OpenImageECC(inFilename, int(eccOffset), eccSpareTypeOf(flagECCSpareType), int(eccBBM), flagECCWidth, eccAlgoOf(flagECCAlgo), log)
		if err != nil {
			return nil, err
		}
		image, closer = img, img
	} else {
		img, err := efs2.OpenImage(inFilename)
		if err != nil {
			return nil, err
		}
		image, closer = img, img
	}

	return efs2.Open(image, closer, efs2.OpenOptions{
		BaseOffset:      startOffset,
		SuperblockIndex: superblockIndex,
		EndOffset:       endOffset,
		Encoding:        encodingOf(flagEncoding),
		ReplayLog:       !flagNoLog,
	})
}
