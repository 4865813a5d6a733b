package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
)

func TestSearchIsDeterministic(t *testing.T) {
	svc := NewJournalService()
	req := &dto.JournalSearchRequest{Query: "machine learning", Page: 1, PageSize: 10}

	first, total1, err := svc.Search(req)
	require.NoError(t, err)
	second, total2, err := svc.Search(req)
	require.NoError(t, err)

	assert.Equal(t, total1, total2)
	assert.Equal(t, first, second, "same query must return the same page")
	require.Len(t, first, 10)

	for _, a := range first {
		assert.NotEmpty(t, a.Title)
		assert.NotEmpty(t, a.Authors)
		assert.NotEmpty(t, a.DOI)
		assert.NotEmpty(t, a.Citation)
		assert.GreaterOrEqual(t, a.Year, 1998)
	}
}

func TestSearchPagination(t *testing.T) {
	svc := NewJournalService()

	page1, total, err := svc.Search(&dto.JournalSearchRequest{Query: "quantum computing", Page: 1, PageSize: 5})
	require.NoError(t, err)
	page2, _, err := svc.Search(&dto.JournalSearchRequest{Query: "quantum computing", Page: 2, PageSize: 5})
	require.NoError(t, err)

	assert.NotEqual(t, page1[0].ID, page2[0].ID)
	assert.GreaterOrEqual(t, total, int64(40))

	// past the last page
	empty, _, err := svc.Search(&dto.JournalSearchRequest{Query: "quantum computing", Page: 1000, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchDifferentQueriesDiffer(t *testing.T) {
	svc := NewJournalService()

	a, _, err := svc.Search(&dto.JournalSearchRequest{Query: "behavioral economics"})
	require.NoError(t, err)
	b, _, err := svc.Search(&dto.JournalSearchRequest{Query: "marine biology"})
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.NotEqual(t, a[0].Title, b[0].Title)
}
