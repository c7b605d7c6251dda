// Package extract pulls candidate links out of free-form chat text.
package extract

import "strings"

var schemes = []string{"http://", "https://"}

// ExtractURLs returns every whitespace-delimited token that starts with an
// http or https scheme, in the order they appear. Duplicates are kept.
func ExtractURLs(text string) []string {
	urls := make([]string, 0)
	for _, token := range strings.Fields(text) {
		if hasScheme(token) {
			urls = append(urls, token)
		}
	}
	return urls
}

func hasScheme(token string) bool {
	lower := strings.ToLower(token)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
