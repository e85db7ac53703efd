// Package nalog implements the primary lookup service: a search request is
// created with the person's data and then polled by its request ID.
package nalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"innsearch/internal/challenge"
	"innsearch/internal/person"
	"innsearch/internal/source"
)

const (
	Name = "nalog"

	DefaultBaseURL = "https://service.nalog.ru/"

	defaultPollInterval = time.Second
	defaultMaxPolls     = 10
)

// Upstream poll states.
const (
	stateUnavailable = -1
	stateNotFound    = 0
	stateFound       = 1
)

// Solver turns a challenge image into its text.
type Solver interface {
	Solve(ctx context.Context, img []byte) (string, error)
}

// Client is the request-then-poll lookup. It is safe for concurrent use; every
// Lookup runs in its own cookie session.
type Client struct {
	baseURL      *url.URL
	transport    http.RoundTripper
	timeout      time.Duration
	solver       Solver
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
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

// WithSolver enables the image challenge. Without a solver the challenge
// fields are sent empty.
func WithSolver(s Solver) Option {
	return func(c *Client) {
		c.solver = s
	}
}

func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(c *Client) {
		if interval >= 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
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
		baseURL:      base,
		timeout:      source.DefaultTimeout,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// SearchForm builds the search request form. Without a patronymic the form
// carries opt_otch=1 and no otch field at all.
func SearchForm(p person.Person, captcha, captchaToken string) url.Values {
	form := url.Values{}
	form.Set("c", "find")
	form.Set("captcha", captcha)
	form.Set("captchaToken", captchaToken)
	form.Set("fam", p.LastName)
	form.Set("nam", p.FirstName)
	if p.Patronymic != "" {
		form.Set("otch", p.Patronymic)
	} else {
		form.Set("opt_otch", "1")
	}
	form.Set("bdate", p.BirthDate)
	form.Set("doctype", person.DocumentTypePassport)
	form.Set("docno", p.DocumentValue())
	form.Set("docdt", "")
	return form
}

// lookup is the per-call state: one browser profile and one cookie session.
type lookup struct {
	*Client
	http    *http.Client
	profile source.BrowserProfile
	person  person.Person
}

// Lookup runs the token and search calls for one person.
func (c *Client) Lookup(ctx context.Context, p person.Person) (person.SearchOutcome, error) {
	l := &lookup{
		Client:  c,
		http:    source.NewLookupClient(c.transport, c.timeout),
		profile: source.RandomProfile(),
		person:  p,
	}

	captcha, captchaToken, err := l.solveChallenge(ctx)
	if err != nil {
		return person.SearchOutcome{}, err
	}
	requestID, err := l.createRequest(ctx, captcha, captchaToken)
	if err != nil {
		return person.SearchOutcome{}, err
	}
	return l.poll(ctx, requestID)
}

type createResponse struct {
	RequestID source.FlexString `json:"requestId"`
	Errors    map[string]any    `json:"ERRORS"`
}

func (l *lookup) createRequest(ctx context.Context, captcha, captchaToken string) (string, error) {
	var out createResponse
	if err := l.postForm(ctx, "inn-new-proc.json", SearchForm(l.person, captcha, captchaToken), &out); err != nil {
		return "", err
	}
	l.debug(ctx, "search request created", "request_id", out.RequestID.String(), "errors", out.Errors)

	if len(out.Errors) > 0 {
		if _, ok := out.Errors["captcha"]; ok {
			return "", source.Unavailable(Name, "challenge answer rejected")
		}
		return "", source.Protocol(Name, "search request rejected: %v", out.Errors)
	}
	if out.RequestID == "" {
		return "", source.Protocol(Name, "create response missing requestId (person %s)", l.person.ID())
	}
	return out.RequestID.String(), nil
}

type pollResponse struct {
	State *int              `json:"state"`
	INN   source.FlexString `json:"inn"`
}

func (l *lookup) poll(ctx context.Context, requestID string) (person.SearchOutcome, error) {
	form := url.Values{}
	form.Set("c", "get")
	form.Set("requestId", requestID)

	for attempt := 1; attempt <= l.maxPolls; attempt++ {
		var out pollResponse
		if err := l.postForm(ctx, "inn-new-proc.json", form, &out); err != nil {
			return person.SearchOutcome{}, err
		}
		if out.State == nil {
			return person.SearchOutcome{}, source.Protocol(Name, "poll response missing state (person %s)", l.person.ID())
		}
		l.debug(ctx, "search polled", "request_id", requestID, "state", *out.State, "poll", attempt)

		switch *out.State {
		case stateFound:
			if out.INN == "" {
				return person.SearchOutcome{}, source.Protocol(Name, "found state without inn (person %s)", l.person.ID())
			}
			return person.FoundOutcome(Name, out.INN.String()), nil
		case stateNotFound:
			return person.NotFoundOutcome(Name), nil
		case stateUnavailable:
			return person.SearchOutcome{}, source.Unavailable(Name, "service reported state -1")
		}

		if attempt < l.maxPolls {
			if err := sleep(ctx, l.pollInterval); err != nil {
				return person.SearchOutcome{}, err
			}
		}
	}
	return person.SearchOutcome{}, source.Unavailable(Name, fmt.Sprintf("request %s still pending after %d polls", requestID, l.maxPolls))
}

func (l *lookup) solveChallenge(ctx context.Context) (string, string, error) {
	if l.solver == nil {
		return "", "", nil
	}
	tokenBody, err := l.get(ctx, "static/captcha.bin", url.Values{"version": {"2"}})
	if err != nil {
		return "", "", err
	}
	token := strings.TrimSpace(string(tokenBody))
	if token == "" {
		return "", "", source.Protocol(Name, "empty challenge token")
	}
	img, err := l.get(ctx, "static/captcha.bin", url.Values{"a": {token}, "version": {"2"}})
	if err != nil {
		return "", "", err
	}
	text, err := l.solver.Solve(ctx, img)
	if err != nil {
		if challenge.IsDecodeError(err) {
			return "", "", source.NewSourceError(source.ErrorChallengeDecode, Name, "challenge image", err)
		}
		return "", "", source.NewSourceError(source.ErrorInternal, Name, "solve challenge", err)
	}
	return text, token, nil
}

func (l *lookup) postForm(ctx context.Context, path string, form url.Values, out any) error {
	endpoint := l.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return source.NewSourceError(source.ErrorInternal, Name, "build request", err)
	}
	l.headers(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := l.http.Do(req)
	if err != nil {
		return source.Transport(Name, "post "+path, err)
	}
	defer resp.Body.Close()

	if err := source.CheckStatus(Name, resp); err != nil {
		return err
	}
	return source.DecodeJSON(Name, resp, out)
}

func (l *lookup) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := l.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, source.NewSourceError(source.ErrorInternal, Name, "build request", err)
	}
	l.headers(req)

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, source.Transport(Name, "get "+path, err)
	}
	defer resp.Body.Close()

	if err := source.CheckStatus(Name, resp); err != nil {
		return nil, err
	}
	body, err := source.ReadBody(resp.Body)
	if err != nil {
		return nil, source.Transport(Name, "read "+path, err)
	}
	return body, nil
}

func (l *lookup) headers(req *http.Request) {
	origin := l.baseURL.Scheme + "://" + l.baseURL.Host
	l.profile.Apply(req, origin, origin+"/inn.do")
}

func (l *lookup) debug(ctx context.Context, msg string, args ...any) {
	if l.logger != nil {
		l.logger.DebugContext(ctx, msg, append(args, "source", Name, "person_id", l.person.ID())...)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ source.Source = (*Client)(nil)
