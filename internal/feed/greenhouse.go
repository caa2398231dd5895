package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// Ensure Greenhouse implements model.Feed.
var _ model.Feed = (*Greenhouse)(nil)

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	Content     string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// Greenhouse fetches postings from the Greenhouse public boards API and
// maps them to raw jobs for intake.
type Greenhouse struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGreenhouse creates a feed for a Greenhouse board.
func NewGreenhouse(boardToken, companyName string, client *http.Client) *Greenhouse {
	return &Greenhouse{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

func (f *Greenhouse) Name() string { return "greenhouse/" + f.boardToken }

// Fetch retrieves all jobs from the board. Non-200 responses surface as
// HTTPError so the retry decorator can classify them.
func (f *Greenhouse) Fetch(ctx context.Context) ([]model.RawJob, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, f.boardToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", f.boardToken, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", f.boardToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("greenhouse fetch for %s", f.boardToken),
		}
	}

	var ghResp greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&ghResp); err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", f.boardToken, err)
	}

	raws := make([]model.RawJob, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		location := gj.Location.Name
		raws = append(raws, model.RawJob{
			Company:     f.companyName,
			Title:       gj.Title,
			Location:    location,
			Remote:      strings.Contains(strings.ToLower(location), "remote"),
			URL:         gj.AbsoluteURL,
			Description: extractText(gj.Content),
			Source:      "greenhouse",
		})
	}
	return raws, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles Greenhouse's double-encoding;
// no-op on already-real HTML), strips all tags, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, "")
	return strings.Join(strings.Fields(plain), " ")
}
