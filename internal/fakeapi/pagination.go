package fakeapi

const defaultPageSize = 20

// pageBounds normalizes a zero-based page request and returns the offset.
func pageBounds(page, size int) (int, int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 100 {
		size = defaultPageSize
	}
	return page, size, page * size
}
