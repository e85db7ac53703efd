package ogu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"innsearch/internal/person"
	"innsearch/internal/source"
	"innsearch/internal/source/contract"
)

const servicePage = `<html><head>
<script type="text/javascript" src="/static/app.js"></script>
<script type="text/javascript">
  var _config = {};
  var _stoken = 'st-9f2c';
</script>
</head><body></body></html>`

func testPerson() person.Person {
	return person.Person{
		LastName:       "Смирнова",
		FirstName:      "Анна",
		Patronymic:     "Олеговна",
		BirthDate:      "01.02.1985",
		DocumentSeries: "4510",
		DocumentNumber: "123456",
	}
}

type upstream struct {
	page       string
	searchBody string
	status     int

	tokenHits atomic.Int32
	lastForm  atomic.Value
	lastHdr   atomic.Value
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inn/", func(w http.ResponseWriter, r *http.Request) {
		u.tokenHits.Add(1)
		_, _ = w.Write([]byte(u.page))
	})
	mux.HandleFunc("/ufns/searchinn/", func(w http.ResponseWriter, r *http.Request) {
		if u.status != 0 {
			w.WriteHeader(u.status)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.lastForm.Store(r.PostForm)
		u.lastHdr.Store(r.Header.Clone())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(u.searchBody))
	})
	return mux
}

type OGUClientSuite struct {
	suite.Suite
}

func TestOGUClientSuite(t *testing.T) {
	suite.Run(t, new(OGUClientSuite))
}

func (s *OGUClientSuite) client(u *upstream) *Client {
	srv := httptest.NewServer(u.handler())
	s.T().Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL))
}

func (s *OGUClientSuite) TestLookup() {
	ctx := context.Background()

	s.Run("success returns identifier", func() {
		u := &upstream{page: servicePage, searchBody: `{"status":"success","individualInn":"771234567890"}`}
		out, err := s.client(u).Lookup(ctx, testPerson())
		s.Require().NoError(err)
		s.Equal(person.FoundOutcome(Name, "771234567890"), out)

		form := u.lastForm.Load().(url.Values)
		s.Equal("st-9f2c", form.Get("_stoken"))
		s.Equal(FormData(testPerson()), form.Get("data"))

		hdr := u.lastHdr.Load().(http.Header)
		s.Equal("XMLHttpRequest", hdr.Get("X-Requested-With"))
		s.True(strings.HasSuffix(hdr.Get("Referer"), "/inn/"))
	})

	s.Run("every lookup fetches a fresh token", func() {
		u := &upstream{page: servicePage, searchBody: `{"status":"not_found"}`}
		c := s.client(u)
		for i := 0; i < 3; i++ {
			_, err := c.Lookup(ctx, testPerson())
			s.Require().NoError(err)
		}
		s.Equal(int32(3), u.tokenHits.Load())
	})

	s.Run("other status is a confirmed negative", func() {
		u := &upstream{page: servicePage, searchBody: `{"status":"not_found"}`}
		out, err := s.client(u).Lookup(ctx, testPerson())
		s.Require().NoError(err)
		s.Equal(person.StatusNotFound, out.Status)
		s.Empty(out.Identifier)
	})

	s.Run("unavailable status is retryable", func() {
		u := &upstream{page: servicePage, searchBody: `{"status":"unavailable"}`}
		_, err := s.client(u).Lookup(ctx, testPerson())
		s.Equal(source.ErrorUpstreamUnavailable, source.GetCategory(err))
		s.True(source.IsRetryable(err))
	})

	s.Run("success without identifier is a protocol error", func() {
		u := &upstream{page: servicePage, searchBody: `{"status":"success"}`}
		_, err := s.client(u).Lookup(ctx, testPerson())
		s.Equal(source.ErrorProtocol, source.GetCategory(err))
	})

	s.Run("missing status is a protocol error", func() {
		u := &upstream{page: servicePage, searchBody: `{"individualInn":"1"}`}
		_, err := s.client(u).Lookup(ctx, testPerson())
		s.Equal(source.ErrorProtocol, source.GetCategory(err))
	})

	s.Run("page without token is a protocol error", func() {
		u := &upstream{page: `<html><script type="text/javascript">var x = 1;</script></html>`}
		_, err := s.client(u).Lookup(ctx, testPerson())
		s.Equal(source.ErrorProtocol, source.GetCategory(err))
		s.Zero(u.lastForm.Load())
	})

	s.Run("server error is transient", func() {
		u := &upstream{page: servicePage, status: http.StatusBadGateway}
		_, err := s.client(u).Lookup(ctx, testPerson())
		s.Equal(source.ErrorTransient, source.GetCategory(err))
		s.True(source.IsRetryable(err))
	})
}

func TestFormData(t *testing.T) {
	t.Run("encodes all fields", func(t *testing.T) {
		data, err := url.ParseQuery(FormData(testPerson()))
		require.NoError(t, err)
		assert.Equal(t, "Смирнова", data.Get("last_name"))
		assert.Equal(t, "Олеговна", data.Get("patronymic"))
		assert.Equal(t, "01.02.1985", data.Get("birthday"))
		assert.Equal(t, "21", data.Get("document_type"))
		assert.Equal(t, "45 10 123456", data.Get("document_value"))
	})

	t.Run("omits empty patronymic", func(t *testing.T) {
		p := testPerson()
		p.Patronymic = ""
		data, err := url.ParseQuery(FormData(p))
		require.NoError(t, err)
		assert.NotContains(t, data, "patronymic")
	})
}

func TestExtractStoken(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(servicePage))
	require.NoError(t, err)
	token, ok := ExtractStoken(doc)
	assert.True(t, ok)
	assert.Equal(t, "st-9f2c", token)

	// Only typed inline scripts are searched.
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<script>var _stoken = 'x';</script>`))
	require.NoError(t, err)
	_, ok = ExtractStoken(doc)
	assert.False(t, ok)
}

func TestOGUContract(t *testing.T) {
	u := &upstream{page: servicePage, searchBody: `{"status":"success","individualInn":"500100732259"}`}
	srv := httptest.NewServer(u.handler())
	defer srv.Close()

	cs := &contract.Suite{
		SourceName: Name,
		Tests: []contract.Test{
			{Name: "returns found outcome", Source: New(WithBaseURL(srv.URL)), Input: testPerson(), Want: person.StatusFound},
		},
	}
	cs.Run(t)

	bad := &upstream{page: "<html></html>"}
	badSrv := httptest.NewServer(bad.handler())
	defer badSrv.Close()
	(&contract.ErrorTest{
		Name:          "missing token",
		Source:        New(WithBaseURL(badSrv.URL)),
		Input:         testPerson(),
		ExpectedError: source.ErrorProtocol,
		ExpectedRetry: false,
	}).Run(t)
}
