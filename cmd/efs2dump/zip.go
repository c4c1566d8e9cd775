package main

import (
	"archive/zip"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

func init() {
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
}

// dumpZip walks the entire mounted volume and writes it into a zip
// archive at outFilename, matching the reference tool's batch-extract
// mode: a single file's read error is logged and skipped rather than
// aborting the whole archive.
func dumpZip(fs *efs2.FS, sourceName, outFilename string) error {
	entries, err := fs.LsRecursive("/")
	if err != nil {
		return err
	}

	out, err := os.Create(outFilename)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	progress := log.NewProgress(outFilename, "%", int64(len(entries)))
	defer progress.Finish(true)

	for i, e := range entries {
		progress.Seek(int64(i), io.SeekStart)
		log.Infof("%s", e.Name)

		name := strings.TrimPrefix(e.Name, "/")
		modTime := e.Info.ModifiedTime
		if modTime.Year() < 1980 {
			modTime = zipEpoch
		}

		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modTime,
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			log.Errorf("%s: %v", e.Name, err)
			continue
		}

		if strings.HasSuffix(e.Name, "/") {
			continue
		}

		rc, err := fs.Open(e.Name, true)
		if err != nil {
			log.Errorf("%s: %v", e.Name, err)
			continue
		}
		if _, err := io.Copy(w, rc); err != nil {
			log.Errorf("%s: %v", e.Name, err)
		}
		rc.Close()
	}

	return nil
}
