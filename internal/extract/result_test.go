package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	got, err := ParseResult(`{"job_title":"  Backend Engineer ","min_years":3}`)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", got.JobTitle)
	assert.Equal(t, 3, got.MinYears)
	assert.JSONEq(t, `{"job_title":"  Backend Engineer ","min_years":3}`, got.RawJSON)
}

func TestParseResultCoercions(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"float years", `{"min_years":2.5}`, 2},
		{"negative collapses to zero", `{"min_years":-3}`, 0},
		{"missing defaults to zero", `{"job_title":"X"}`, 0},
		{"null defaults to zero", `{"min_years":null}`, 0},
		{"string defaults to zero", `{"min_years":"five"}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResult(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.MinYears)
		})
	}
}

func TestParseResultInvalidJSON(t *testing.T) {
	_, err := ParseResult("not json at all")
	assert.Error(t, err)

	_, err = ParseResult("")
	assert.Error(t, err)
}

func TestParseResultTrimsSurroundingWhitespace(t *testing.T) {
	got, err := ParseResult("\n  {\"job_title\":\"X\",\"min_years\":1}\n")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MinYears)
}
