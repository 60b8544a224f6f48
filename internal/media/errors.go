package media

import "fmt"

// SizeLimitError reports content that exceeds its byte cap, whether
// announced up front or discovered mid-stream. Acquisition is aborted,
// never partially accepted.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("size limit of %d bytes exceeded", e.Limit)
}
