package search

import "time"

type Config struct {
	// IndexPath 为空时使用内存索引
	IndexPath           string
	DefaultSearchFields []string
	QueryTimeout        time.Duration
}

type Doc struct {
	ID     string
	Type   string
	Fields map[string]any
}

// GeoFilter keeps hits whose "location" lies within RadiusKm of the point.
type GeoFilter struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
}

type TimeRangeFilter struct {
	Field string
	From  *time.Time
	To    *time.Time
}

type SearchRequest struct {
	Keyword      string
	SearchFields []string

	// 结构化 Term，同一字段多个值为 OR
	MustTerms map[string][]string

	TimeRanges []TimeRangeFilter
	Near       *GeoFilter

	// 排序与分页
	SortBy []string
	From   int
	Size   int
}

type Hit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

type SearchResult struct {
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took"`
	Hits  []Hit         `json:"hits"`
}
