package domain

// SearchResult is one web search context item.
type SearchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score,omitempty"`
}
