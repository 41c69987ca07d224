package scholar

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// ArxivAdapter searches the arXiv Atom API.
type ArxivAdapter struct {
	baseURL string
	http    *http.Client
}

// NewArxivAdapter builds the adapter.
func NewArxivAdapter() *ArxivAdapter {
	return &ArxivAdapter{
		baseURL: arxivBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

// Source implements Adapter.
func (a *ArxivAdapter) Source() Source { return SourceArxiv }

type arxivFeed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Links []struct {
			Href  string `xml:"href,attr"`
			Title string `xml:"title,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// Search implements Adapter.
func (a *ArxivAdapter) Search(ctx context.Context, queries []string, limitPerQuery int) ([]Paper, error) {
	var all []Paper
	for _, query := range queries {
		papers, err := a.searchOne(ctx, query, limitPerQuery)
		if err != nil {
			return nil, err
		}
		all = append(all, papers...)
	}
	return all, nil
}

func (a *ArxivAdapter) searchOne(ctx context.Context, query string, limit int) ([]Paper, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: status %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.ID == "" || e.Title == "" {
			continue
		}
		authors := make([]string, 0, len(e.Authors))
		for _, au := range e.Authors {
			authors = append(authors, au.Name)
		}
		p := Paper{
			PaperID:  arxivID(e.ID),
			Title:    collapseSpace(e.Title),
			Authors:  authors,
			Year:     publishedYear(e.Published),
			Abstract: collapseSpace(e.Summary),
			URL:      e.ID,
			Source:   SourceArxiv,
		}
		for _, l := range e.Links {
			if l.Title == "pdf" {
				p.PDFURL = l.Href
				break
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// arxivID strips the abs URL down to the bare identifier.
func arxivID(absURL string) string {
	if i := strings.LastIndex(absURL, "/abs/"); i >= 0 {
		return "arxiv:" + absURL[i+len("/abs/"):]
	}
	return absURL
}

func publishedYear(published string) int {
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return 0
	}
	return t.Year()
}

// collapseSpace normalizes the newline-wrapped text arXiv feeds carry.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
