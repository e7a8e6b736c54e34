package entities

import "time"

// ReviewChapterUID is the synthetic chapter WeRead attaches book-level reviews to.
const ReviewChapterUID = 1000000

const ReviewChapterTitle = "点评"

// ReviewTypeBook marks a review written about the whole book rather than a passage.
const ReviewTypeBook = 4

type Book struct {
	ID       string `json:"book_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Cover    string `json:"cover,omitempty"`
	Category string `json:"category,omitempty"`
}

// Bookmark is a highlighted passage as returned by the reading platform.
// CreatedAt is in epoch seconds, zero when the platform did not report it.
type Bookmark struct {
	ID         string `json:"bookmark_id"`
	BookID     string `json:"book_id"`
	ChapterUID int    `json:"chapter_uid"`
	Text       string `json:"mark_text"`
	CreatedAt  int64  `json:"create_time"`
}

// CreatedTime returns the creation time, falling back to now when unknown.
func (b Bookmark) CreatedTime(now time.Time) time.Time {
	if b.CreatedAt <= 0 {
		return now
	}
	return time.Unix(b.CreatedAt, 0)
}

type Chapter struct {
	UID   int    `json:"chapter_uid"`
	Index *int   `json:"chapter_idx,omitempty"`
	Title string `json:"title"`
	Level int    `json:"level"`
}

type Review struct {
	BookmarkID string `json:"bookmark_id"`
	Content    string `json:"content"`
	ChapterUID int    `json:"chapter_uid"`
	Type       int    `json:"type"`
}

type BookInfo struct {
	ID        string `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Intro     string `json:"intro,omitempty"`
	Category  string `json:"category,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	ISBN      string `json:"isbn,omitempty"`
}

// Note is a highlight with everything the renderer needs. AITags holds only
// generated tags; book, category and author tags are added at render time.
type Note struct {
	BookTitle  string
	Author     string
	Highlight  string
	Chapter    string
	BookURL    string
	NoteText   string
	CreateTime string
	AITags     []string
	Summary    string
}
