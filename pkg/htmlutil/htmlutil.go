package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText is the text of the first node of the selection with non
// printable characters removed and whitespace runs collapsed.
func CleanText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	text := GetText(sel.Get(0))
	text = removeNonPrintable(text)
	text = strings.TrimSpace(text)
	text = innerWhitespace.ReplaceAllString(text, " ")
	return text
}

// Parse parses an html document into a goquery document.
func Parse(doc string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(doc))
}

// ResolveHref resolves a possibly relative href against base.
func ResolveHref(base, href string) (string, error) {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return baseUrl.ResolveReference(link).String(), nil
}
