package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// progressOutput is where bars and spinners render. Piped or NO_COLOR runs
// get no progress output so stdout stays clean for answers.
func progressOutput() io.Writer {
	if color.NoColor {
		return io.Discard
	}
	return os.Stderr
}

// docBar tracks a batch of documents and names the one being ingested.
type docBar struct {
	bar *progressbar.ProgressBar
}

func newDocBar(total int) *docBar {
	out := progressOutput()
	return &docBar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "|",
			BarEnd:        "|",
		}),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)}
}

// start labels the bar with the document about to be processed.
func (d *docBar) start(name string) {
	d.bar.Describe(color.BlueString("ingesting %s", filepath.Base(name)))
}

func (d *docBar) done() {
	_ = d.bar.Add(1)
}

func (d *docBar) finish() {
	d.bar.Describe(color.BlueString("ingested"))
	_ = d.bar.Finish()
}

func newSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(progressOutput()),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(11),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
	)
}
