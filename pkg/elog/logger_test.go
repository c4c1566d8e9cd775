package elog

import (
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

func TestFormatDisableColorsReturnsMessageUnmodified(t *testing.T) {
	cli := &CLI{DisableColors: true}
	entry := &logrus.Entry{Message: "mounting image", Level: logrus.InfoLevel}

	out, err := cli.Format(entry)
	if err != nil {
		t.Fatalf("Format returned an error: %v", err)
	}
	if string(out) != "mounting image" {
		t.Errorf("Format(DisableColors=true) = %q, want %q", out, "mounting image")
	}
}

func TestFormatAppendsNewlinePerLevel(t *testing.T) {
	prevNoColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prevNoColor }()

	cli := &CLI{DisableColors: false}

	levels := []logrus.Level{
		logrus.TraceLevel,
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
	}

	for _, lvl := range levels {
		entry := &logrus.Entry{Message: "hello", Level: lvl}
		out, err := cli.Format(entry)
		if err != nil {
			t.Fatalf("Format(%v) returned an error: %v", lvl, err)
		}
		if string(out) != "hello\n" {
			t.Errorf("Format(%v) = %q, want %q", lvl, out, "hello\n")
		}
	}
}

func TestNilProgressIncrementAndFinishDoNothing(t *testing.T) {
	np := &nilProgress{total: 10}
	np.Increment(3)
	np.Finish(true)
	// nilProgress is the DisableTTY fallback: it must never panic and
	// never block, regardless of call order.
}

func TestNilProgressWrite(t *testing.T) {
	np := &nilProgress{total: 100}
	n, err := np.Write([]byte("12345"))
	if err != nil {
		t.Fatalf("Write returned an error: %v", err)
	}
	if n != 5 {
		t.Errorf("Write returned %d, want 5", n)
	}
	if np.cursor != 5 {
		t.Errorf("cursor = %d, want 5 after writing 5 bytes", np.cursor)
	}
}
