package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Shoes for everyone </title>
  <meta name="description" content="Buy shoes">
  <meta property="og:title" content="Shoes">
  <meta property="og:image" content="/og.png">
  <meta property="og:title" content="Duplicate">
  <meta name="twitter:card" content="summary">
  <link rel="stylesheet" href="/main.css">
  <link rel="stylesheet" href="https://fonts.googleapis.com/css?family=Inter">
  <link rel="shortcut icon" href="/favicon.ico">
  <link rel="preload" href="/fonts/inter.woff2" as="font">
  <script src="/app.js"></script>
  <script src="https://cdn.example.net/lib.js" defer></script>
  <script type="module" src="/module.js"></script>
  <style>@font-face { font-family: A; } @FONT-FACE { font-family: B; }</style>
</head>
<body>
  <h1>Shoes</h1>
  <h2>Running</h2>
  <h4>Trail</h4>
  <h1>More  shoes</h1>
  <img src="/a.png" alt="a">
  <img src="/b.png">
  <img src="http://www.shop.test/c.png">
  <img src="http://other.test/d.png">
  <a href="/running">Running</a>
  <a href="/running">Running again</a>
  <a href="https://partner.test/">Partner</a>
  <a href="#">Top</a>
  <a href="javascript:void(0);">Noop</a>
  <a>Anchor</a>
  <a href="mailto:info@shop.test">Mail</a>
  <script src="https://www.googletagmanager.com/gtm.js" async></script>
</body>
</html>`

func TestParseBuildsFactSheet(t *testing.T) {
	pa, err := Parse("https://shop.test/catalog/", "https://shop.test", []byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "Shoes for everyone", pa.Title)
	assert.Equal(t, 2, pa.H1Count)
	assert.Equal(t, []string{"Shoes", "More shoes"}, pa.H1Texts)
	assert.Equal(t, []int{1, 2, 4, 1}, pa.Headings)

	assert.Equal(t, 3, pa.ImagesWithoutAltCount)
	assert.Len(t, pa.ImagesWithoutAlt, 3)
	assert.Equal(t, `<img src="/b.png"/>`, pa.ImagesWithoutAlt[0])
	assert.Equal(t, []string{
		"https://shop.test/a.png", "https://shop.test/b.png", "http://www.shop.test/c.png", "http://other.test/d.png",
	}, pa.Images)

	assert.Equal(t, 3, pa.EmptyLinksCount)
	assert.Equal(t, []string{"https://shop.test/running", "https://partner.test/"}, pa.Links)

	assert.Equal(t, 4, pa.JSFiles)
	assert.Equal(t, 2, pa.CSSFiles)
	assert.Equal(t, 1, pa.RenderBlockingScripts)
	assert.Equal(t, 4, pa.WebFonts)
	assert.False(t, pa.HasLazyLoading)
	assert.True(t, pa.HasFavicon)
	assert.True(t, pa.HasMetaDescription)

	assert.Equal(t, []string{"http://www.shop.test/c.png"}, pa.MixedContent)
	assert.Equal(t, []string{"https://cdn.example.net/lib.js", "https://www.googletagmanager.com/gtm.js"},
		pa.ExternalScripts)
	assert.Equal(t, []string{"og:title", "og:image"}, pa.OGTags)
	assert.Equal(t, []string{"twitter:card"}, pa.TwitterTags)
	assert.Equal(t, len(samplePage), pa.Size)
}

func TestParseCapsSamplesButNotCounts(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `<img src="/img-%d.png"><a href="#">x</a>`, i)
	}
	b.WriteString("</body></html>")

	pa, err := Parse("https://shop.test/", "", []byte(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 25, pa.ImagesWithoutAltCount)
	assert.Len(t, pa.ImagesWithoutAlt, 10)
	assert.Equal(t, 25, pa.EmptyLinksCount)
	assert.Len(t, pa.EmptyLinks, 10)
	assert.Len(t, pa.Images, 25)
}

func TestParseCountsOnlyFontLoads(t *testing.T) {
	page := `<html><head>
		<link rel="preconnect" href="https://fonts.gstatic.com">
		<link rel="dns-prefetch" href="https://fonts.googleapis.com">
		<link rel="preload" href="/hero.woff2" as="image">
		<link rel="preload" href="/body.woff2" as="font" crossorigin>
		<link rel="stylesheet" href="https://fonts.googleapis.com/css2?family=Inter">
	</head><body></body></html>`
	pa, err := Parse("https://shop.test/", "https://shop.test", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, 2, pa.WebFonts)
}

func TestParseTruncatesElements(t *testing.T) {
	long := `<html><body><img src="/` + strings.Repeat("x", 200) + `.png"></body></html>`
	pa, err := Parse("https://shop.test/", "", []byte(long))
	require.NoError(t, err)
	require.Len(t, pa.ImagesWithoutAlt, 1)
	assert.Len(t, pa.ImagesWithoutAlt[0], 100)
}

func TestParseSkipsMixedContentOnPlainHTTP(t *testing.T) {
	pa, err := Parse("http://shop.test/", "", []byte(`<html><body><img src="http://shop.test/a.png" loading="lazy"></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, pa.MixedContent)
	assert.True(t, pa.HasLazyLoading)
}

func TestAnalyzeFetchesWithColly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><head><title>Home</title></head><body><h1>Hi</h1><a href="/about">About</a></body></html>`))
		case "/slow":
			time.Sleep(500 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	a := New(&CollyFetcher{}, time.Second)
	pa := a.Analyze(context.Background(), ts.URL+"/", ts.URL)
	require.NotNil(t, pa)
	assert.Equal(t, "Home", pa.Title)
	assert.Equal(t, []string{ts.URL + "/about"}, pa.Links)

	assert.Nil(t, a.Analyze(context.Background(), ts.URL+"/missing", ts.URL))
	assert.Nil(t, New(&CollyFetcher{}, 100*time.Millisecond).Analyze(context.Background(), ts.URL+"/slow", ts.URL))
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(model.Curl, nil, "auditor")
	require.NoError(t, err)
	assert.IsType(t, &CollyFetcher{}, f)

	f, err = NewFetcher(model.HeadlessBrowser, nil, "auditor")
	require.NoError(t, err)
	assert.IsType(t, &BrowserFetcher{}, f)

	_, err = NewFetcher(model.CrawlMechanism(7), nil, "")
	assert.Error(t, err)
}
