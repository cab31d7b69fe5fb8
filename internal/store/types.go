// Package store defines the record types and storage interfaces shared by the
// crawler, the index builder, and the query path. Implementations live in the
// postgres and mongo sub-packages; an in-memory implementation backs tests.
package store

import "time"

// Page is a raw crawled page as written by the crawler and scanned by the
// index builder. Favicon, SiteName and Image are display metadata carried
// through to search results unmodified; they may be empty.
type Page struct {
	ID        string    `bson:"_id" json:"id"`
	URL       string    `bson:"url" json:"url"`
	Title     string    `bson:"title" json:"title"`
	Snippet   string    `bson:"snippet" json:"snippet"`
	Favicon   string    `bson:"favicon" json:"favicon,omitempty"`
	SiteName  string    `bson:"site_name" json:"site_name,omitempty"`
	Image     string    `bson:"image" json:"image,omitempty"`
	Text      string    `bson:"text" json:"text"`
	Links     []string  `bson:"links" json:"links,omitempty"`
	CrawlTime time.Time `bson:"crawl_time" json:"crawl_time"`
}

// Document is the per-document metadata record produced by a rebuild. One
// record exists per indexed document; the whole table is replaced on every
// rebuild.
type Document struct {
	ID       string `bson:"_id" json:"id"`
	URL      string `bson:"url" json:"url"`
	Title    string `bson:"title" json:"title"`
	Snippet  string `bson:"snippet" json:"snippet"`
	Length   int    `bson:"length" json:"length"`
	Favicon  string `bson:"favicon,omitempty" json:"favicon,omitempty"`
	Image    string `bson:"image,omitempty" json:"image,omitempty"`
	SiteName string `bson:"site_name,omitempty" json:"site_name,omitempty"`
}

// Posting records how often one term occurs in one document. TF is always
// positive: a term with no occurrences in a document has no posting at all.
type Posting struct {
	DocID string `bson:"doc_id" json:"doc_id"`
	TF    int    `bson:"tf" json:"tf"`
}

// TermEntry is one term's row in the inverted index: its corpus-wide inverse
// document frequency and every posting, ordered by document id.
type TermEntry struct {
	Term     string    `bson:"term" json:"term"`
	IDF      float64   `bson:"idf" json:"idf"`
	Postings []Posting `bson:"postings" json:"postings"`
}
