package cmd

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/pubsub"
)

// showProgress reports whether progress bars should be drawn: only on a
// terminal and never with --verbose, where the JSON log owns stderr.
func showProgress() bool {
	return !verbose && isatty.IsTerminal(os.Stderr.Fd())
}

// newProgressBar creates a bar over total files, or nil when progress is
// hidden.
func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	if total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!noColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// progressObserver advances bar once per settled file. The walk may yield
// more files than quoted, so the bar grows instead of overflowing. Snapshots
// can arrive out of order, so the bar only moves forward.
func progressObserver(bar *progressbar.ProgressBar) ingest.Observer {
	if bar == nil {
		return nil
	}
	var (
		mu   sync.Mutex
		done int
	)
	return func(evt pubsub.EventType, p ingest.Progress) {
		switch evt {
		case pubsub.FileIndexed, pubsub.FileDegraded, pubsub.FileFailed:
		case pubsub.Finished:
			mu.Lock()
			_ = bar.Finish()
			mu.Unlock()
			return
		default:
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if p.Done() <= done {
			return
		}
		done = p.Done()
		if int64(done) > bar.GetMax64() {
			bar.ChangeMax64(int64(done))
		}
		_ = bar.Set(done)
	}
}
