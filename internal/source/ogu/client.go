// Package ogu implements the fallback lookup service. Every search needs a
// fresh form token scraped from the service page.
package ogu

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"innsearch/internal/person"
	"innsearch/internal/source"
)

const (
	Name = "ogu"

	DefaultBaseURL = "https://oplatagosuslug.ru/"
)

const (
	statusSuccess     = "success"
	statusUnavailable = "unavailable"
	statusError       = "error"
)

var stokenPattern = regexp.MustCompile(`var _stoken = '([^']+)';`)

// Client is safe for concurrent use; every Lookup runs in its own cookie
// session.
type Client struct {
	baseURL   *url.URL
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Client)

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			if !strings.HasSuffix(u.Path, "/") {
				u.Path += "/"
			}
			c.baseURL = u
		}
	}
}

func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = t
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(opts ...Option) *Client {
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: base,
		timeout: source.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// FormData encodes the person the way the search form's "data" field expects.
// An empty patronymic is left out.
func FormData(p person.Person) string {
	data := url.Values{}
	data.Set("last_name", p.LastName)
	data.Set("first_name", p.FirstName)
	if p.Patronymic != "" {
		data.Set("patronymic", p.Patronymic)
	}
	data.Set("birthday", p.BirthDate)
	data.Set("document_type", person.DocumentTypePassport)
	data.Set("document_value", p.DocumentValue())
	return data.Encode()
}

// SearchForm is the body of the search POST.
func SearchForm(p person.Person, stoken string) url.Values {
	form := url.Values{}
	form.Set("data", FormData(p))
	form.Set("_stoken", stoken)
	return form
}

// ExtractStoken finds the form token in the service page's inline scripts.
func ExtractStoken(doc *goquery.Document) (string, bool) {
	var token string
	doc.Find(`script[type="text/javascript"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := stokenPattern.FindStringSubmatch(s.Text()); m != nil {
			token = m[1]
			return false
		}
		return true
	})
	return token, token != ""
}

type searchResponse struct {
	Status        *string           `json:"status"`
	IndividualINN source.FlexString `json:"individualInn"`
}

type lookup struct {
	*Client
	http    *http.Client
	profile source.BrowserProfile
	person  person.Person
}

// Lookup fetches a form token and runs the search for one person.
func (c *Client) Lookup(ctx context.Context, p person.Person) (person.SearchOutcome, error) {
	l := &lookup{
		Client:  c,
		http:    source.NewLookupClient(c.transport, c.timeout),
		profile: source.RandomProfile(),
		person:  p,
	}

	stoken, err := l.stoken(ctx)
	if err != nil {
		return person.SearchOutcome{}, err
	}
	return l.search(ctx, stoken)
}

func (l *lookup) stoken(ctx context.Context) (string, error) {
	resp, err := l.do(ctx, http.MethodGet, "inn/", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := source.ReadBody(resp.Body)
	if err != nil {
		return "", source.Transport(Name, "read token page", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", source.NewSourceError(source.ErrorProtocol, Name, "parse token page", err)
	}
	token, ok := ExtractStoken(doc)
	if !ok {
		return "", source.Protocol(Name, "no stoken on service page (person %s)", l.person.ID())
	}
	return token, nil
}

func (l *lookup) search(ctx context.Context, stoken string) (person.SearchOutcome, error) {
	resp, err := l.do(ctx, http.MethodPost, "ufns/searchinn/", SearchForm(l.person, stoken))
	if err != nil {
		return person.SearchOutcome{}, err
	}
	defer resp.Body.Close()

	var out searchResponse
	if err := source.DecodeJSON(Name, resp, &out); err != nil {
		return person.SearchOutcome{}, err
	}
	if out.Status == nil {
		return person.SearchOutcome{}, source.Protocol(Name, "search response missing status (person %s)", l.person.ID())
	}
	if l.logger != nil {
		l.logger.DebugContext(ctx, "search answered",
			"source", Name,
			"person_id", l.person.ID(),
			"upstream_status", *out.Status,
		)
	}

	switch *out.Status {
	case statusSuccess:
		if out.IndividualINN == "" {
			return person.SearchOutcome{}, source.Protocol(Name, "success without individualInn (person %s)", l.person.ID())
		}
		return person.FoundOutcome(Name, out.IndividualINN.String()), nil
	case statusUnavailable, statusError:
		return person.SearchOutcome{}, source.Unavailable(Name, "service reported status "+*out.Status)
	default:
		return person.NotFoundOutcome(Name), nil
	}
}

// do issues the request and checks its status. The caller closes the body.
func (l *lookup) do(ctx context.Context, method, path string, form url.Values) (*http.Response, error) {
	endpoint := l.baseURL.ResolveReference(&url.URL{Path: path})
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, source.NewSourceError(source.ErrorInternal, Name, "build request", err)
	}
	origin := l.baseURL.Scheme + "://" + l.baseURL.Host
	l.profile.Apply(req, origin, origin+"/inn/")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, source.Transport(Name, strings.ToLower(method)+" "+path, err)
	}
	if err := source.CheckStatus(Name, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

var _ source.Source = (*Client)(nil)
