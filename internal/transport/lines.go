package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ReadLines submits one record per line until r is exhausted or ctx is
// done. It returns the number of jobs enqueued.
func ReadLines(ctx context.Context, r io.Reader, enq Enqueuer, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	n := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if submit(scanner.Text(), "lines", enq, logger) {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read job records: %w", err)
	}
	return n, nil
}
