package scholar

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pubmedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedAdapter searches PubMed through the NCBI E-utilities: esearch for
// ids, then efetch for titles, authors, and abstracts.
type PubMedAdapter struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewPubMedAdapter builds the adapter. The API key is optional and only
// raises the NCBI rate limit.
func NewPubMedAdapter(apiKey string) *PubMedAdapter {
	return &PubMedAdapter{
		baseURL: pubmedBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

// Source implements Adapter.
func (a *PubMedAdapter) Source() Source { return SourcePubMed }

// Search implements Adapter.
func (a *PubMedAdapter) Search(ctx context.Context, queries []string, limitPerQuery int) ([]Paper, error) {
	var all []Paper
	for _, query := range queries {
		ids, err := a.searchIDs(ctx, query, limitPerQuery)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		papers, err := a.fetch(ctx, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, papers...)
	}
	return all, nil
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (a *PubMedAdapter) searchIDs(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retmode", "json")
	if a.apiKey != "" {
		params.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed esearch: status %d", resp.StatusCode)
	}

	var body esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("pubmed esearch: decode: %w", err)
	}
	return body.ESearchResult.IDList, nil
}

type pubmedArticleSet struct {
	Articles []struct {
		Citation struct {
			PMID    string `xml:"PMID"`
			Article struct {
				Title    string `xml:"ArticleTitle"`
				Abstract struct {
					Texts []string `xml:"AbstractText"`
				} `xml:"Abstract"`
				Journal struct {
					Issue struct {
						PubDate struct {
							Year string `xml:"Year"`
						} `xml:"PubDate"`
					} `xml:"JournalIssue"`
				} `xml:"Journal"`
				AuthorList struct {
					Authors []struct {
						LastName string `xml:"LastName"`
						ForeName string `xml:"ForeName"`
					} `xml:"Author"`
				} `xml:"AuthorList"`
			} `xml:"Article"`
		} `xml:"MedlineCitation"`
	} `xml:"PubmedArticle"`
}

func (a *PubMedAdapter) fetch(ctx context.Context, ids []string) ([]Paper, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	if a.apiKey != "" {
		params.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/efetch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed efetch: status %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("pubmed efetch: decode: %w", err)
	}

	papers := make([]Paper, 0, len(set.Articles))
	for _, art := range set.Articles {
		c := art.Citation
		if c.PMID == "" || c.Article.Title == "" {
			continue
		}
		authors := make([]string, 0, len(c.Article.AuthorList.Authors))
		for _, au := range c.Article.AuthorList.Authors {
			name := strings.TrimSpace(au.ForeName + " " + au.LastName)
			if name != "" {
				authors = append(authors, name)
			}
		}
		year, _ := strconv.Atoi(c.Article.Journal.Issue.PubDate.Year)
		papers = append(papers, Paper{
			PaperID:  "pmid:" + c.PMID,
			Title:    c.Article.Title,
			Authors:  authors,
			Year:     year,
			Abstract: strings.Join(c.Article.Abstract.Texts, " "),
			URL:      "https://pubmed.ncbi.nlm.nih.gov/" + c.PMID + "/",
			Source:   SourcePubMed,
		})
	}
	return papers, nil
}
