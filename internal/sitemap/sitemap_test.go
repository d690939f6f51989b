package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlsetTmpl = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>{{base}}/</loc><lastmod>2024-01-10</lastmod></url>
  <url><loc>{{base}}/shoes</loc><lastmod>2024-03-05T10:00:00+00:00</lastmod></url>
  <url><loc>{{base}}/hats</loc></url>
</urlset>`

const indexTmpl = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>{{base}}/sitemap-products.xml</loc></sitemap>
  <sitemap><loc>{{base}}/sitemap-broken.xml</loc></sitemap>
  <sitemap><loc>{{base}}/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`

func serve(routes map[string]string) *httptest.Server {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(strings.ReplaceAll(body, "{{base}}", ts.URL)))
	}))
	return ts
}

func TestDiscoverReadsUrlset(t *testing.T) {
	ts := serve(map[string]string{"/sitemap.xml": urlsetTmpl})
	defer ts.Close()

	r, ok := NewFetcher(nil, "").Fetch(context.Background(), ts.URL)
	require.True(t, ok)
	assert.Equal(t, ts.URL+"/sitemap.xml", r.Location)
	assert.Equal(t, []string{ts.URL + "/", ts.URL + "/shoes", ts.URL + "/hats"}, r.URLs)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), r.LastModified.UTC())
}

func TestDiscoverFollowsIndexAndSkipsBrokenNested(t *testing.T) {
	ts := serve(map[string]string{
		"/sitemap_index.xml": indexTmpl,
		"/sitemap-products.xml": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<url><loc>{{base}}/p/1</loc></url><url><loc>{{base}}/p/2</loc></url></urlset>`,
		"/sitemap-pages.xml": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<url><loc>{{base}}/about</loc></url><url><loc>{{base}}/p/1</loc></url></urlset>`,
	})
	defer ts.Close()

	urls := NewFetcher(nil, "").Discover(context.Background(), ts.URL)
	assert.Equal(t, []string{ts.URL + "/p/1", ts.URL + "/p/2", ts.URL + "/about"}, urls)
}

func TestDiscoverFallsThroughMalformedCandidate(t *testing.T) {
	ts := serve(map[string]string{
		"/sitemap.xml":       "<html><body>not a sitemap</body></html>",
		"/sitemap-index.xml": urlsetTmpl,
	})
	defer ts.Close()

	r, ok := NewFetcher(nil, "").Fetch(context.Background(), ts.URL+"/")
	require.True(t, ok)
	assert.Equal(t, ts.URL+"/sitemap-index.xml", r.Location)
	assert.Len(t, r.URLs, 3)
}

func TestDiscoverReturnsEmptyWithoutSitemap(t *testing.T) {
	ts := serve(map[string]string{})
	defer ts.Close()

	urls := NewFetcher(nil, "").Discover(context.Background(), ts.URL)
	assert.NotNil(t, urls)
	assert.Empty(t, urls)
}

func TestParseLastmod(t *testing.T) {
	for _, v := range []string{"2024-05-01", "2024-05-01T08:30:00Z", "2024-05-01T08:30+02:00", " 2024-05-01T08:30:00 "} {
		_, ok := parseLastmod(v)
		assert.True(t, ok, v)
	}
	_, ok := parseLastmod("yesterday")
	assert.False(t, ok)
}
