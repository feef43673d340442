package apihttp

import (
	"fmt"
	"regexp"
	"strconv"

	"castgate/internal/domain"
)

// openEnd marks a Range header with no explicit end ("bytes=N-"): the
// stream runs to the end of the content.
const openEnd = int64(-1)

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// parseBlockRange turns a single-range HTTP Range header into a
// block-aligned fetch plan. fetchOffset is the largest multiple of
// blockSize not exceeding the requested start, skip is the number of
// leading bytes of the first block to discard, and end is the exclusive
// upper bound of the requested window (openEnd when the header names no
// end). Malformed headers map to domain.ErrMalformedRequest.
func parseBlockRange(header string, blockSize int64) (fetchOffset, skip, end int64, err error) {
	match := rangePattern.FindStringSubmatch(header)
	if match == nil {
		return 0, 0, 0, fmt.Errorf("%w: range %q", domain.ErrMalformedRequest, header)
	}

	start, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: range start %q", domain.ErrMalformedRequest, match[1])
	}

	end = openEnd
	if match[2] != "" {
		last, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: range end %q", domain.ErrMalformedRequest, match[2])
		}
		if last < start {
			return 0, 0, 0, fmt.Errorf("%w: range end before start", domain.ErrMalformedRequest)
		}
		end = last + 1
	}

	fetchOffset = start / blockSize * blockSize
	skip = start - fetchOffset
	return fetchOffset, skip, end, nil
}
