// Package fixtures holds the bundled booksdb sample dataset.
package fixtures

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"booksdb/internal/dataset"
	"booksdb/internal/models"
)

// Collection names used by the books application
const (
	UsersCollection   = "app_user"
	AuthorsCollection = "author"
	GenresCollection  = "genre"
	BooksCollection   = "book"
	CounterCollection = "counter"
)

// AccountUser is the application account the dataset provisions
const AccountUser = "appuser"

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func born(year int, month time.Month, d int) *time.Time {
	t := day(year, month, d)
	return &t
}

var (
	admin    = models.User{UserID: 1, Username: "admin", PasswordHash: "admin123"}
	bookworm = models.User{UserID: 2, Username: "bookworm", PasswordHash: "reader456"}
	reviewer = models.User{UserID: 3, Username: "reviewer", PasswordHash: "review789"}
)

var (
	bloch     = models.Author{AuthorID: 1, Name: "Joshua Bloch", BirthDate: born(1961, time.August, 28)}
	martin    = models.Author{AuthorID: 2, Name: "Robert C. Martin", BirthDate: born(1952, time.December, 5)}
	fowler    = models.Author{AuthorID: 3, Name: "Martin Fowler", BirthDate: born(1963, time.December, 18)}
	kernighan = models.Author{AuthorID: 4, Name: "Brian Kernighan", BirthDate: born(1942, time.January, 1)}
	ritchie   = models.Author{AuthorID: 5, Name: "Dennis Ritchie", BirthDate: born(1941, time.September, 9)}
	knuth     = models.Author{AuthorID: 6, Name: "Donald Knuth", BirthDate: born(1938, time.January, 10)}
	gamma     = models.Author{AuthorID: 7, Name: "Erich Gamma", BirthDate: born(1961, time.March, 13)}
	gof       = models.Author{AuthorID: 8, Name: "Gang of Four"}
)

var (
	programming     = models.Genre{GenreID: 1, Name: "Programming"}
	softwareEng     = models.Genre{GenreID: 2, Name: "Software Engineering"}
	computerScience = models.Genre{GenreID: 3, Name: "Computer Science"}
	java            = models.Genre{GenreID: 4, Name: "Java"}
	designPatterns  = models.Genre{GenreID: 5, Name: "Design Patterns"}
	algorithms      = models.Genre{GenreID: 6, Name: "Algorithms"}
	cProgramming    = models.Genre{GenreID: 7, Name: "C Programming"}
)

// Users returns the seeded application users
func Users() []models.User {
	return []models.User{admin, bookworm, reviewer}
}

// Authors returns the seeded authors
func Authors() []models.Author {
	return []models.Author{bloch, martin, fowler, kernighan, ritchie, knuth, gamma, gof}
}

// Genres returns the seeded genres
func Genres() []models.Genre {
	return []models.Genre{programming, softwareEng, computerScience, java, designPatterns, algorithms, cProgramming}
}

func authors(list ...models.Author) []models.AuthorSnapshot {
	out := make([]models.AuthorSnapshot, 0, len(list))
	for _, a := range list {
		out = append(out, a.Snapshot())
	}
	return out
}

func genres(list ...models.Genre) []models.GenreSnapshot {
	out := make([]models.GenreSnapshot, 0, len(list))
	for _, g := range list {
		out = append(out, g.Snapshot())
	}
	return out
}

func rating(by models.User, score int, at time.Time) models.Rating {
	return models.Rating{UserID: by.UserID, Rating: score, RatedAt: at}
}

// Books returns the seeded books with their snapshots taken now and their
// average ratings computed from the embedded ratings
func Books() []models.Book {
	books := []models.Book{
		{
			BookID:    1,
			ISBN:      "978-0-13-468599-1",
			Title:     "Effective Java",
			Published: day(2018, time.January, 6),
			CreatedBy: admin.Snapshot(),
			Authors:   authors(bloch),
			Genres:    genres(programming, java),
			Ratings: []models.Rating{
				rating(admin, 5, day(2024, time.January, 15)),
				rating(bookworm, 5, day(2024, time.February, 20)),
				rating(reviewer, 4, day(2024, time.March, 10)),
			},
			Reviews: []models.Review{
				models.NewReview(1, bookworm, "An essential read for any Java developer. The best practices in this book have improved my code quality significantly.", day(2024, time.February, 20)),
				models.NewReview(2, reviewer, "Clear, concise, and packed with practical advice. Every item is a gem.", day(2024, time.March, 10)),
			},
		},
		{
			BookID:    2,
			ISBN:      "978-0-13-235088-4",
			Title:     "Clean Code",
			Published: day(2008, time.August, 1),
			CreatedBy: admin.Snapshot(),
			Authors:   authors(martin),
			Genres:    genres(programming, softwareEng),
			Ratings: []models.Rating{
				rating(admin, 5, day(2024, time.January, 20)),
				rating(bookworm, 4, day(2024, time.February, 25)),
			},
			Reviews: []models.Review{
				models.NewReview(3, admin, "Changed how I think about writing code. The principles here apply to any language.", day(2024, time.January, 20)),
				models.NewReview(4, bookworm, "A must-read for professional developers. The chapter on naming conventions alone is worth the price.", day(2024, time.February, 25)),
			},
		},
		{
			BookID:    3,
			ISBN:      "978-0-20-161622-4",
			Title:     "The Pragmatic Programmer",
			Published: day(1999, time.October, 20),
			CreatedBy: admin.Snapshot(),
			Genres:    genres(programming, softwareEng),
			Ratings: []models.Rating{
				rating(bookworm, 5, day(2024, time.March, 1)),
			},
		},
		{
			BookID:    4,
			ISBN:      "978-0-13-110362-7",
			Title:     "The C Programming Language",
			Published: day(1988, time.April, 1),
			CreatedBy: bookworm.Snapshot(),
			Authors:   authors(kernighan, ritchie),
			Genres:    genres(programming, cProgramming),
			Ratings: []models.Rating{
				rating(admin, 5, day(2024, time.January, 25)),
			},
			Reviews: []models.Review{
				models.NewReview(5, admin, "The classic that started it all. Still relevant after all these years.", day(2024, time.January, 25)),
			},
		},
		{
			BookID:    5,
			ISBN:      "978-0-20-163361-0",
			Title:     "Design Patterns",
			Published: day(1994, time.October, 31),
			CreatedBy: bookworm.Snapshot(),
			Authors:   authors(gamma),
			Genres:    genres(programming, designPatterns),
			Ratings: []models.Rating{
				rating(reviewer, 5, day(2024, time.February, 15)),
			},
			Reviews: []models.Review{
				models.NewReview(6, reviewer, "The design patterns in this book are timeless. Essential knowledge for OOP developers.", day(2024, time.February, 15)),
			},
		},
		{
			BookID:    6,
			ISBN:      "978-0-20-189683-1",
			Title:     "The Art of Computer Programming",
			Published: day(1968, time.January, 1),
			CreatedBy: admin.Snapshot(),
			Authors:   authors(knuth),
			Genres:    genres(computerScience, algorithms),
			Ratings: []models.Rating{
				rating(admin, 5, day(2024, time.March, 5)),
			},
		},
	}

	for i := range books {
		books[i].Normalize()
	}
	return books
}

// Counter returns the counter document, pointing one past the highest seeded ids
func Counter(books []models.Book) models.Counter {
	counter := models.Counter{ID: models.CounterID, NextBookID: 1, NextReviewID: 1}
	for _, b := range books {
		counter.NextBookID = max(counter.NextBookID, b.BookID+1)
		for _, r := range b.Reviews {
			counter.NextReviewID = max(counter.NextReviewID, r.ReviewID+1)
		}
	}
	return counter
}

// EmbeddedReviews counts the reviews embedded across books
func EmbeddedReviews(books []models.Book) int {
	n := 0
	for _, b := range books {
		n += len(b.Reviews)
	}
	return n
}

// BooksDB returns the bundled dataset; the account is granted readWrite on database
func BooksDB(database string) (dataset.Dataset, error) {
	books := Books()
	for _, b := range books {
		if err := b.Validate(); err != nil {
			return dataset.Dataset{}, err
		}
	}

	users, err := toDocs(Users())
	if err != nil {
		return dataset.Dataset{}, err
	}
	authorDocs, err := toDocs(Authors())
	if err != nil {
		return dataset.Dataset{}, err
	}
	genreDocs, err := toDocs(Genres())
	if err != nil {
		return dataset.Dataset{}, err
	}
	bookDocs, err := toDocs(books)
	if err != nil {
		return dataset.Dataset{}, err
	}
	counterDocs, err := toDocs([]models.Counter{Counter(books)})
	if err != nil {
		return dataset.Dataset{}, err
	}

	unique := func(field string) dataset.Index {
		return dataset.Index{Fields: []string{field}, Unique: true}
	}

	return dataset.Dataset{
		Name: "booksdb",
		Account: &dataset.Account{
			User:  AccountUser,
			Roles: []dataset.Role{{Role: "readWrite", DB: database}},
		},
		Collections: []dataset.Collection{
			{
				Name: UsersCollection, Label: "users", Key: "user_id",
				Documents: users,
				Indexes:   []dataset.Index{unique("user_id"), unique("username")},
			},
			{
				Name: AuthorsCollection, Label: "authors", Key: "author_id",
				Documents: authorDocs,
				Indexes:   []dataset.Index{unique("author_id")},
			},
			{
				Name: GenresCollection, Label: "genres", Key: "genre_id",
				Documents: genreDocs,
				Indexes:   []dataset.Index{unique("genre_id")},
			},
			{
				Name: BooksCollection, Label: "books", Key: "isbn",
				Documents: bookDocs,
				Indexes: []dataset.Index{
					unique("isbn"),
					unique("book_id"),
					{Fields: []string{"title"}, Kind: dataset.KindText},
					{Fields: []string{"authors.name"}},
					{Fields: []string{"genres.name"}},
				},
			},
			{
				Name: CounterCollection, Label: "counter", Key: "_id",
				Strategy:  dataset.StrategyKeep,
				Documents: counterDocs,
			},
		},
	}, nil
}

// toDocs round-trips typed records through BSON so they keep their field order
func toDocs[T any](items []T) ([]bson.D, error) {
	docs := make([]bson.D, 0, len(items))
	for _, item := range items {
		raw, err := bson.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T: %w", item, err)
		}
		var doc bson.D
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %T: %w", item, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
