package replicate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// FetchRequest names one image to acquire and the prompt to generate it
// from.
type FetchRequest struct {
	Path   string
	Prompt string
}

// FetchAll generates every requested image sequentially, skipping files that
// already exist and are non-empty so interrupted runs resume where they left
// off. It returns how many new images were written; the first hard failure
// aborts the run.
func (c *Client) FetchAll(ctx context.Context, requests []FetchRequest) (int, error) {
	written := 0
	for i, req := range requests {
		if info, err := os.Stat(req.Path); err == nil && info.Size() > 0 {
			continue
		}

		data, err := c.Generate(ctx, req.Prompt)
		if err != nil {
			return written, fmt.Errorf("failed to generate image %d (%s): %w", i, req.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(req.Path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", req.Path, err)
		}
		written++
		log.Printf("fetched %s (%d bytes)", req.Path, len(data))

		if c.Delay > 0 && i < len(requests)-1 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
	}
	return written, nil
}
