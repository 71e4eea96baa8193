package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAllVerbs(t *testing.T) {
	input := strings.Join([]string{
		"Inserting 1",
		"Updating 2",
		"Deleting 3",
		"Query 4 -> abc",
		"Query 5 -> DNE",
		"Full_scan 0",
		"Lower_bound_scan 6",
		"Upper_bound_scan 7",
	}, "\n")

	ops, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ops, 8)

	require.Equal(t, Op{Kind: Insert, Key: 1}, ops[0])
	require.Equal(t, Op{Kind: Update, Key: 2}, ops[1])
	require.Equal(t, Op{Kind: Delete, Key: 3}, ops[2])
	require.Equal(t, Op{Kind: Query, Key: 4, Expect: "abc"}, ops[3])
	require.Equal(t, Op{Kind: Query, Key: 5, Expect: DNE}, ops[4])
	require.Equal(t, Op{Kind: FullScan, Key: 0}, ops[5])
	require.Equal(t, Op{Kind: LowerBoundScan, Key: 6}, ops[6])
	require.Equal(t, Op{Kind: UpperBoundScan, Key: 7}, ops[7])
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	input := "# a comment\n\nInserting 1\n  \n"
	ops, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []Op{{Kind: Insert, Key: 1}}, ops)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("Inserting\n"))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, perr.Line)
}

func TestParseRejectsMalformedQuery(t *testing.T) {
	_, err := Parse(strings.NewReader("Query 1 => x\n"))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseRejectsUnknownVerb(t *testing.T) {
	_, err := Parse(strings.NewReader("Frobnicating 1\n"))
	require.Error(t, err)
}

func TestWriteThenParseRoundTrips(t *testing.T) {
	ops := []Op{
		{Kind: Insert, Key: 1},
		{Kind: Update, Key: 2},
		{Kind: Delete, Key: 3},
		{Kind: Query, Key: 4, Expect: "abc"},
		{Kind: Query, Key: 5, Expect: DNE},
		{Kind: FullScan},
		{Kind: LowerBoundScan, Key: 6},
		{Kind: UpperBoundScan, Key: 7},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ops))

	got, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, ops, got)
}
