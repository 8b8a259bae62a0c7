package app

import (
	"bufio"
	"context"
	"io"

	"murmur/internal/domain"
)

// LineCapture reads one utterance per line.
type LineCapture struct {
	R io.Reader
}

var _ domain.Capture = LineCapture{}

func (LineCapture) Name() string { return "lines" }

// Start scans R until EOF or ctx is done; the channel is closed afterwards.
func (c LineCapture) Start(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(c.R)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
