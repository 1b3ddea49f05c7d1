package util

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Calculate normalises a 1-based page and page size into an offset and limit.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	from = (page - 1) * size
	return from, size
}

func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
