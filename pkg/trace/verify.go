package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxLine bounds a single trace line; engine results can be large.
const maxLine = 16 * 1024 * 1024

// VerifyResult is the outcome of verifying a trace file.
type VerifyResult struct {
	EventCount int
	Runs       int // distinct run ids
	Valid      bool
	BrokenAt   int // 1-based event index, -1 if no break
	ChainHash  string
	Error      string
}

// VerifyFile verifies the hash chain of a trace file.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify checks that every event's prev_hash matches the hash of the line
// before it.
func Verify(r io.Reader) (*VerifyResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxLine)

	expected := Genesis
	count := 0
	runs := make(map[string]struct{})

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		count++

		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return broken(count, fmt.Sprintf("event %d: invalid JSON: %v", count, err)), nil
		}
		if evt.PrevHash != expected {
			return broken(count, fmt.Sprintf("event %d: prev_hash mismatch (expected %s..., got %s...)",
				count, short(expected), short(evt.PrevHash))), nil
		}
		if evt.RunID != "" {
			runs[evt.RunID] = struct{}{}
		}
		expected = hashLine(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return &VerifyResult{
		EventCount: count,
		Runs:       len(runs),
		Valid:      true,
		BrokenAt:   -1,
		ChainHash:  expected,
	}, nil
}

func broken(at int, msg string) *VerifyResult {
	return &VerifyResult{EventCount: at, Valid: false, BrokenAt: at, Error: msg}
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
