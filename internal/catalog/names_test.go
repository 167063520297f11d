package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Frank Herbert", want: "frank herbert"},
		{in: "  Martin Luther King, Jr. ", want: "martin luther king"},
		{in: "John Smith III", want: "john smith"},
		{in: "Gabriel García Márquez", want: "gabriel garcia marquez"},
		{in: "J.R.R. Tolkien", want: "j r r tolkien"},
		{in: "Jr", want: "jr"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "lord of the rings", NormalizeTitle("The Lord of the Rings"))
	assert.Equal(t, "hobbit or there and back again", NormalizeTitle("The Hobbit: or, There and Back Again"))
	assert.Equal(t, "tale of two cities", NormalizeTitle("A Tale of Two Cities"))
	assert.Equal(t, "the", NormalizeTitle("The"))
	assert.Equal(t, "les miserables", NormalizeTitle("Les Misérables"))
}

func TestNamesOverlap(t *testing.T) {
	assert.True(t, NamesOverlap("Frank Herbert", "frank herbert"))
	assert.True(t, NamesOverlap("Frank Herbert Jr.", "Frank Herbert"))
	assert.True(t, NamesOverlap("J.R.R. Tolkien", "Tolkien"))
	assert.False(t, NamesOverlap("Ann Leckie", "Joanna Russ"))
	assert.False(t, NamesOverlap("Unknown Author", "Unknown Author"))
	assert.False(t, NamesOverlap("", "Frank Herbert"))
}

func TestTitlesContain(t *testing.T) {
	assert.True(t, TitlesContain("Dune", "Dune (40th Anniversary Edition)", 4))
	assert.True(t, TitlesContain("The Lord of the Rings: The Fellowship of the Ring", "Fellowship of the Ring", 4))
	assert.False(t, TitlesContain("It", "Italy Travel Guide", 2))
	assert.False(t, TitlesContain("Dune", "Dune Messiah", 5))
	// Length is counted in runes: "мир" is three runes but six bytes.
	assert.False(t, TitlesContain("Война и мир", "Мир", 4))
	assert.True(t, TitlesContain("Война и мир", "Мир", 3))
}

func TestSameTitle(t *testing.T) {
	assert.True(t, SameTitle("dune", " DUNE "))
	assert.False(t, SameTitle("Dune", "Dune Messiah"))
}

func TestCleanNames(t *testing.T) {
	got := cleanNames([]string{" Frank Herbert ", "", "frank herbert", "Unknown Author", "Brian Herbert"})
	assert.Equal(t, []string{"Frank Herbert", "Brian Herbert"}, got)
}
