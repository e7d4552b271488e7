package models

import (
	"fmt"
	"math"
	"time"
)

// User represents an application account
type User struct {
	UserID       int    `bson:"user_id"`
	Username     string `bson:"username"`
	PasswordHash string `bson:"password_hash"`
}

// UserSnapshot is the copy of a user embedded into other documents
type UserSnapshot struct {
	UserID   int    `bson:"user_id"`
	Username string `bson:"username"`
}

// Snapshot copies the user's display fields as they are right now
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{UserID: u.UserID, Username: u.Username}
}

// Author represents a book author
type Author struct {
	AuthorID  int        `bson:"author_id"`
	Name      string     `bson:"name"`
	BirthDate *time.Time `bson:"birth_date"`
}

// AuthorSnapshot is the copy of an author embedded into a book
type AuthorSnapshot struct {
	AuthorID  int        `bson:"author_id"`
	Name      string     `bson:"name"`
	BirthDate *time.Time `bson:"birth_date"`
}

// Snapshot copies the author as it is right now
func (a Author) Snapshot() AuthorSnapshot {
	return AuthorSnapshot{AuthorID: a.AuthorID, Name: a.Name, BirthDate: a.BirthDate}
}

// Genre represents a book genre
type Genre struct {
	GenreID int    `bson:"genre_id"`
	Name    string `bson:"name"`
}

// GenreSnapshot is the copy of a genre embedded into a book
type GenreSnapshot struct {
	GenreID int    `bson:"genre_id"`
	Name    string `bson:"name"`
}

// Snapshot copies the genre as it is right now
func (g Genre) Snapshot() GenreSnapshot {
	return GenreSnapshot{GenreID: g.GenreID, Name: g.Name}
}

// Rating is a single user's score for a book
type Rating struct {
	UserID  int       `bson:"user_id"`
	Rating  int       `bson:"rating"`
	RatedAt time.Time `bson:"rated_at"`
}

// Review is a user's text review embedded into a book
type Review struct {
	ReviewID   int       `bson:"review_id"`
	UserID     int       `bson:"user_id"`
	Username   string    `bson:"username"`
	ReviewText string    `bson:"review_text"`
	ReviewDate time.Time `bson:"review_date"`
}

// NewReview builds a review, snapshotting the author's username
func NewReview(id int, by User, text string, date time.Time) Review {
	snap := by.Snapshot()
	return Review{
		ReviewID:   id,
		UserID:     snap.UserID,
		Username:   snap.Username,
		ReviewText: text,
		ReviewDate: date,
	}
}

// Book represents a book with its embedded authors, genres, ratings and reviews
type Book struct {
	BookID        int              `bson:"book_id"`
	ISBN          string           `bson:"isbn"`
	Title         string           `bson:"title"`
	Published     time.Time        `bson:"published"`
	CreatedBy     UserSnapshot     `bson:"created_by"`
	Authors       []AuthorSnapshot `bson:"authors"`
	Genres        []GenreSnapshot  `bson:"genres"`
	Ratings       []Rating         `bson:"ratings"`
	AverageRating float64          `bson:"average_rating"`
	Reviews       []Review         `bson:"reviews"`
}

// Normalize replaces nil lists with empty ones and recomputes the average rating.
// Nil slices encode as BSON null, so every writer goes through here first.
func (b *Book) Normalize() {
	if b.Authors == nil {
		b.Authors = []AuthorSnapshot{}
	}
	if b.Genres == nil {
		b.Genres = []GenreSnapshot{}
	}
	if b.Ratings == nil {
		b.Ratings = []Rating{}
	}
	if b.Reviews == nil {
		b.Reviews = []Review{}
	}
	b.AverageRating = AverageRating(b.Ratings)
}

// Validate checks the invariants a stored book must satisfy
func (b Book) Validate() error {
	if b.BookID <= 0 {
		return fmt.Errorf("book %q: book_id must be positive", b.Title)
	}
	if b.ISBN == "" {
		return fmt.Errorf("book %d: isbn is required", b.BookID)
	}
	if b.Authors == nil || b.Genres == nil || b.Ratings == nil || b.Reviews == nil {
		return fmt.Errorf("book %d: embedded lists must not be nil", b.BookID)
	}
	if avg := AverageRating(b.Ratings); math.Abs(avg-b.AverageRating) > 1e-9 {
		return fmt.Errorf("book %d: average_rating %.4f does not match ratings mean %.4f", b.BookID, b.AverageRating, avg)
	}
	return nil
}

// AverageRating returns the arithmetic mean of the scores, or 0 when there are none
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return float64(sum) / float64(len(ratings))
}

// CounterID is the _id of the singleton counter document
const CounterID = "counters"

// Counter tracks the next free identifiers for auto-incremented entities
type Counter struct {
	ID           string `bson:"_id"`
	NextBookID   int    `bson:"next_book_id"`
	NextReviewID int    `bson:"next_review_id"`
}
