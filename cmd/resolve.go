package cmd

import (
	"context"

	"github.com/lepinkainen/recto/internal/affiliate"
	"github.com/lepinkainen/recto/internal/catalog"
	"github.com/lepinkainen/recto/internal/config"
	"github.com/lepinkainen/recto/internal/resolver"
)

// ResolveCmd resolves a key, with optional hints, into a canonical record.
type ResolveCmd struct {
	Key         string   `arg:"" help:"OpenLibrary work key, e.g. OL45804W or /works/OL45804W"`
	Title       string   `help:"Title hint"`
	Author      []string `help:"Author hint (repeatable)" sep:"none"`
	ReleaseDate string   `help:"Release date hint, any common format"`
	Genre       []string `help:"Genre hint (repeatable)" sep:"none"`
	CoverID     int      `help:"OpenLibrary cover id hint"`
	Links       bool     `help:"Include retailer and library links for the --region storefront"`
}

// resolveOutput is what resolve prints.
type resolveOutput struct {
	Record *catalog.Record `json:"record" yaml:"record"`
	Links  affiliate.Links `json:"links,omitempty" yaml:"links,omitempty"`
}

func (r *ResolveCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	rec, err := a.resolver.Resolve(context.Background(), resolver.Request{
		Key:         r.Key,
		Title:       r.Title,
		Authors:     r.Author,
		ReleaseDate: r.ReleaseDate,
		Genres:      r.Genre,
		CoverID:     r.CoverID,
	})
	if err != nil {
		return err
	}

	out := resolveOutput{Record: rec}
	if r.Links {
		out.Links = affiliate.Project(rec, config.Region, a.affiliate)
	}
	return writeOutput(stdout, out)
}

// LinksCmd prints the retailer and library links for a key in the
// configured region.
type LinksCmd struct {
	Key string `arg:"" help:"OpenLibrary work key"`
}

func (l *LinksCmd) Run() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	rec, err := a.resolver.Resolve(context.Background(), resolver.Request{Key: l.Key})
	if err != nil {
		return err
	}
	return writeOutput(stdout, affiliate.Project(rec, config.Region, a.affiliate))
}
