package cli

import (
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/meigma/courier"
)

// progressMode returns the configured progress mode: "auto", "tty", or "plain".
func progressMode() string {
	mode := viper.GetString("progress")
	switch mode {
	case "auto", "tty", "plain":
		return mode
	default:
		return "auto"
	}
}

// shouldShowProgress returns true if progress bars should be displayed.
func shouldShowProgress() bool {
	switch progressMode() {
	case "plain":
		return false
	case "tty":
		return true
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// newProgressBar creates a new progress bar for byte-based operations.
// A negative total renders a spinner.
func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

// transferProgress renders transfer progress events on a bar that is created
// lazily once the total is known. It is safe for concurrent use.
type transferProgress struct {
	description string
	enabled     bool

	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	finished bool
}

func newTransferProgress(description string) *transferProgress {
	return &transferProgress{description: description, enabled: shouldShowProgress()}
}

// Update moves the bar to p.
func (tp *transferProgress) Update(p courier.Progress) {
	if !tp.enabled {
		return
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.finished {
		return
	}
	if tp.bar == nil {
		tp.bar = newProgressBar(p.TotalBytes, tp.description)
	}
	//nolint:errcheck // progress bar errors are not critical
	tp.bar.Set64(p.BytesTransferred)
}

// Finish completes the bar if one was shown.
func (tp *transferProgress) Finish() {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.finished = true
	if tp.bar != nil {
		//nolint:errcheck // progress bar errors are not critical
		tp.bar.Finish()
	}
}
