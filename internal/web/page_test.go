package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title> Sample Page </title>
<meta name="description" content="A page for tests">
<script>var x = 1;</script>
</head>
<body>
<header>site header</header>
<h1>Hello</h1>
<p>Some <b>bold</b> text.</p>
<a href="/about#team">About</a>
<a href="https://other.example/b">B</a>
<a href="mailto:me@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<footer>site footer</footer>
</body>
</html>`

func TestSummarizeHTML(t *testing.T) {
	ps, err := Summarize("https://example.com/start", []byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "Sample Page", ps.Title)
	assert.Equal(t, "A page for tests", ps.Description)
	assert.Equal(t, []string{"https://example.com/about", "https://other.example/b"}, ps.Links)
	assert.Contains(t, ps.Text, "# Hello")
	assert.Contains(t, ps.Text, "**bold**")
	assert.NotContains(t, ps.Text, "var x")
	assert.NotContains(t, ps.Text, "site footer")
}

func TestSummarizePlainText(t *testing.T) {
	ps, err := Summarize("https://example.com/a.txt", []byte("just text"))
	require.NoError(t, err)
	assert.Equal(t, "just text", ps.Text)
	assert.Empty(t, ps.Links)
}

func TestSummarizeRejectsBinary(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err := Summarize("https://example.com/a.png", png)
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestSummarizeTrimsLargeInput(t *testing.T) {
	body := []byte(strings.Repeat("a", MaxSummaryInput+10))
	ps, err := Summarize("https://example.com/big.txt", body)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ps.Text, "[response trimmed due to size]"))
	assert.Len(t, body, MaxSummaryInput+10, "input must not be modified")
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize("https://example.com/", nil)
	assert.Error(t, err)
}
