package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
)

func TestMatchers(t *testing.T) {
	rec := record.New("d1", map[string]value.Value{
		"City":   value.String("Paris Texas"),
		"Port":   value.Int(8080),
		"Online": value.Bool(true),
	})

	tests := []struct {
		name  string
		match Matcher
		want  bool
	}{
		{"term", TermMatcher("City", "Texas"), true},
		{"all terms", TermMatcher("City", "Texas Paris"), true},
		{"missing term", TermMatcher("City", "Paris Lyon"), false},
		{"other field", TermMatcher("Port", "Paris"), false},
		{"absent field", TermMatcher("Zip", "Paris"), false},
		{"empty term", TermMatcher("City", " "), false},
		{"value", ValueMatcher("City", "Paris Texas"), true},
		{"partial value", ValueMatcher("City", "Paris"), false},
		{"int value", ValueMatcher("Port", "8080"), true},
		{"wildcard", WildcardMatcher("City", "Par* *xas", '*'), true},
		{"wildcard miss", WildcardMatcher("City", "Ly*", '*'), false},
		{"literal pattern", WildcardMatcher("City", "Paris", '*'), true},
		{"any field", AnyFieldMatcher([]string{"Paris", "8080", "true"}, '*'), true},
		{"any field pattern", AnyFieldMatcher([]string{"80*", "Tex*"}, '*'), true},
		{"any field miss", AnyFieldMatcher([]string{"Paris", "Lyon"}, '*'), false},
		{"no terms", AnyFieldMatcher(nil, '*'), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match(rec))
		})
	}
}
