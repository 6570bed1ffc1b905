package qqmusic

type Resolution struct {
	URL     string
	SongMID string
	Title   string
}

type SearchResult struct {
	SongMID string
	Title   string
}
