package services

import "github.com/detectdash/client/models"

// DefaultPageSize is the number of detections shown per page.
const DefaultPageSize = 10

// TotalPages returns ceil(n/size), floored at 1 so an empty list still has a page.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

func NextPage(page, totalPages int) int {
	return ClampPage(page+1, totalPages)
}

func PrevPage(page, totalPages int) int {
	return ClampPage(page-1, totalPages)
}

// PageSlice returns the detections on page k without clamping.
// Pages outside [1, TotalPages] are empty.
func PageSlice(items []models.Detection, k, size int) []models.Detection {
	if size <= 0 {
		size = DefaultPageSize
	}
	if k < 1 || k > TotalPages(len(items), size) {
		return []models.Detection{}
	}
	start := (k - 1) * size
	if start >= len(items) {
		return []models.Detection{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	// full slice expression keeps callers from appending into the backing array
	return items[start:end:end]
}

// Paginate clamps page into range and returns the view of that page.
func Paginate(items []models.Detection, page, size int) models.PageView {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := TotalPages(len(items), size)
	page = ClampPage(page, total)
	return models.PageView{
		Page:       page,
		PageSize:   size,
		TotalPages: total,
		Total:      len(items),
		Items:      PageSlice(items, page, size),
		HasPrev:    page > 1,
		HasNext:    page < total,
	}
}
