package scholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const semanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"

// SemanticScholarAdapter searches the Semantic Scholar Graph API.
type SemanticScholarAdapter struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewSemanticScholarAdapter builds the adapter. The API key is optional;
// without one requests run against the public rate limit.
func NewSemanticScholarAdapter(apiKey string) *SemanticScholarAdapter {
	return &SemanticScholarAdapter{
		baseURL: semanticScholarBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

// Source implements Adapter.
func (a *SemanticScholarAdapter) Source() Source { return SourceSemanticScholar }

type s2SearchResponse struct {
	Data []struct {
		PaperID  string `json:"paperId"`
		Title    string `json:"title"`
		Abstract string `json:"abstract"`
		Year     int    `json:"year"`
		URL      string `json:"url"`
		Authors  []struct {
			Name string `json:"name"`
		} `json:"authors"`
		OpenAccessPdf *struct {
			URL string `json:"url"`
		} `json:"openAccessPdf"`
	} `json:"data"`
}

// Search implements Adapter.
func (a *SemanticScholarAdapter) Search(ctx context.Context, queries []string, limitPerQuery int) ([]Paper, error) {
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

func (a *SemanticScholarAdapter) searchOne(ctx context.Context, query string, limit int) ([]Paper, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "paperId,title,abstract,year,authors,url,openAccessPdf")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/paper/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("semantic scholar: status %d", resp.StatusCode)
	}

	var body s2SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("semantic scholar: decode: %w", err)
	}

	papers := make([]Paper, 0, len(body.Data))
	for _, d := range body.Data {
		if d.PaperID == "" || d.Title == "" {
			continue
		}
		authors := make([]string, 0, len(d.Authors))
		for _, au := range d.Authors {
			authors = append(authors, au.Name)
		}
		p := Paper{
			PaperID:  d.PaperID,
			Title:    d.Title,
			Authors:  authors,
			Year:     d.Year,
			Abstract: d.Abstract,
			URL:      d.URL,
			Source:   SourceSemanticScholar,
		}
		if d.OpenAccessPdf != nil {
			p.PDFURL = d.OpenAccessPdf.URL
		}
		papers = append(papers, p)
	}
	return papers, nil
}
