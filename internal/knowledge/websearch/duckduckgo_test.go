package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<div class="result">
<h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.consumerfinance.gov%2Ffcra&amp;rut=abc">The <b>Fair Credit</b> Reporting Act</a></h2>
<a class="result__snippet" href="x">The FCRA &amp; your rights when a report is wrong.</a>
</div>
<div class="result">
<h2 class="result__title"><a rel="nofollow" class="result__a" href="https://www.ftc.gov/fdcpa">FDCPA overview</a></h2>
<a class="result__snippet" href="y">Debt collectors must send a   validation notice.</a>
</div>`

func TestSearchParsesResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	results, err := New(srv.URL+"/", time.Second).Search(context.Background(), "fcra dispute", 5)

	require.NoError(t, err)
	assert.Equal(t, "fcra dispute", gotQuery)
	require.Len(t, results, 2)
	assert.Equal(t, Result{
		Title:   "The Fair Credit Reporting Act",
		URL:     "https://www.consumerfinance.gov/fcra",
		Snippet: "The FCRA & your rights when a report is wrong.",
	}, results[0])
	assert.Equal(t, "Debt collectors must send a validation notice.", results[1].Snippet)
}

func TestSearchLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	results, err := New(srv.URL, time.Second).Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Search(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "429")
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := New("", 0).Search(context.Background(), "  ", 3)
	assert.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://a.example/x", resolveURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fx"))
	assert.Equal(t, "http://b.example", resolveURL("http://b.example"))
	assert.Equal(t, "", resolveURL("/relative"))
}
