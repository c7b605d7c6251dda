// Package classifier maps links to the content type that drives delivery.
package classifier

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

type rule struct {
	contentType domain.ContentType
	domains     []string
	// pathPrefix narrows a rule to part of a site, empty matches all paths.
	pathPrefix string
}

// rules are evaluated in order and the first match wins.
var rules = []rule{
	{contentType: domain.ContentTypeInstagram, domains: []string{"instagram.com", "instagr.am"}},
	{contentType: domain.ContentTypePinterest, domains: []string{"pinterest.com", "pin.it"}},
	{contentType: domain.ContentTypeYouTube, domains: []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}},
	{contentType: domain.ContentTypeYouTube, domains: []string{"google.com"}, pathPrefix: "/youtube"},
}

// Classify returns the content type for rawURL. A hint naming a known content
// type wins unconditionally. Unparsable or unknown links are generic.
func Classify(rawURL string, hint string) domain.ContentType {
	if strings.TrimSpace(hint) != "" {
		if ct, err := domain.ParseContentTypeFromString(hint); err == nil {
			return ct
		}
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.ContentTypeGeneric
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return domain.ContentTypeGeneric
	}

	registrable := registrableDomain(host)
	for _, r := range rules {
		if r.matches(host, registrable, u.Path) {
			return r.contentType
		}
	}
	return domain.ContentTypeGeneric
}

func (r rule) matches(host, registrable, path string) bool {
	if r.pathPrefix != "" && !strings.HasPrefix(path, r.pathPrefix) {
		return false
	}
	for _, d := range r.domains {
		if host == d || registrable == d || sameBrand(registrable, d) {
			return true
		}
	}
	return false
}

// sameBrand matches country variants such as pinterest.co.uk or pinterest.de
// against pinterest.com.
func sameBrand(registrable, d string) bool {
	if !strings.HasSuffix(d, ".com") {
		return false
	}
	label := strings.TrimSuffix(d, ".com")
	return strings.HasPrefix(registrable, label+".")
}

func registrableDomain(host string) string {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
