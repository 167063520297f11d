package cmd

import (
	"context"
	"fmt"

	"github.com/lepinkainen/recto/internal/search"
)

// SearchCmd searches OpenLibrary by title, author or genre.
type SearchCmd struct {
	Title  string `help:"Search by title" xor:"query"`
	Author string `help:"Search by author" xor:"query"`
	Genre  string `help:"Search by genre (subject)" xor:"query"`
	Page   int    `help:"Page number" default:"1"`
	Limit  int    `help:"Results per page" default:"10"`
}

func (s *SearchCmd) query() (search.Kind, string, error) {
	switch {
	case s.Title != "":
		return search.KindTitle, s.Title, nil
	case s.Author != "":
		return search.KindAuthor, s.Author, nil
	case s.Genre != "":
		return search.KindGenre, s.Genre, nil
	default:
		return "", "", fmt.Errorf("one of --title, --author or --genre is required")
	}
}

func (s *SearchCmd) Run() error {
	kind, query, err := s.query()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	resp, err := a.search.Search(context.Background(), kind, query, s.Page, s.Limit)
	if err != nil {
		return err
	}
	return writeOutput(stdout, resp)
}
