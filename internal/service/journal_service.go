package service

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/phdwriter/essay_go_server/internal/model/dto"
)

// JournalService is a mock academic search index. Results are derived
// deterministically from the query so the same search always returns the
// same articles, which keeps pagination stable.
type JournalService struct{}

func NewJournalService() *JournalService {
	return &JournalService{}
}

var journalNames = []string{
	"Journal of Advanced Research",
	"International Review of Methodology",
	"Quarterly Studies in Applied Theory",
	"Annals of Interdisciplinary Science",
	"Contemporary Perspectives Review",
	"Global Journal of Empirical Inquiry",
	"Transactions on Scholarly Practice",
	"Foundations and Trends in Research",
}

var authorSurnames = []string{
	"Anderson", "Chen", "Müller", "Okafor", "Silva",
	"Tanaka", "Novak", "Haddad", "Lindqvist", "Moreau",
}

var titleTemplates = []string{
	"A Systematic Review of %s: Methods and Open Problems",
	"Rethinking %s: Evidence from Longitudinal Studies",
	"%s in Practice: A Multi-Site Empirical Analysis",
	"Toward a Unified Framework for %s",
	"The Limits of %s: A Critical Reassessment",
	"Quantitative Approaches to %s: A Meta-Analysis",
}

// Search returns one page of mock results.
func (s *JournalService) Search(req *dto.JournalSearchRequest) ([]dto.Article, int64, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	query := strings.TrimSpace(req.Query)
	seed := hashQuery(query)
	total := int64(40 + seed%160)

	start := (page - 1) * pageSize
	if int64(start) >= total {
		return []dto.Article{}, total, nil
	}
	end := start + pageSize
	if int64(end) > total {
		end = int(total)
	}

	articles := make([]dto.Article, 0, end-start)
	for i := start; i < end; i++ {
		articles = append(articles, buildArticle(query, seed, i))
	}
	return articles, total, nil
}

func buildArticle(query string, seed uint64, index int) dto.Article {
	n := seed + uint64(index)*2654435761

	title := fmt.Sprintf(titleTemplates[n%uint64(len(titleTemplates))], titleCase(query))
	journal := journalNames[n%uint64(len(journalNames))]
	year := 1998 + int(n%27)

	authorCount := 1 + int(n%3)
	authors := make([]string, 0, authorCount)
	for i := 0; i < authorCount; i++ {
		surname := authorSurnames[(n+uint64(i)*7)%uint64(len(authorSurnames))]
		initial := rune('A' + (n+uint64(i)*13)%26)
		authors = append(authors, fmt.Sprintf("%s, %c.", surname, initial))
	}

	doi := fmt.Sprintf("10.%04d/%s.%d.%04d", 1000+n%9000, shortSlug(query), year, n%10000)

	return dto.Article{
		ID:      fmt.Sprintf("art-%d-%d", seed%100000, index),
		Title:   title,
		Authors: authors,
		Journal: journal,
		Year:    year,
		Abstract: fmt.Sprintf(
			"This study addresses %s through a combination of systematic review and original analysis. "+
				"Drawing on %d primary studies, the authors identify recurring methodological gaps and propose "+
				"directions for future work. The findings have implications for both theory and applied practice.",
			query, 12+int(n%60)),
		DOI: doi,
		Citation: fmt.Sprintf("%s (%d). %s. %s. https://doi.org/%s",
			strings.Join(authors, ", "), year, title, journal, doi),
	}
}

func hashQuery(query string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(query)))
	return h.Sum64()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 3 || i == 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func shortSlug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
		if b.Len() >= 8 {
			break
		}
	}
	if b.Len() == 0 {
		return "journal"
	}
	return b.String()
}
