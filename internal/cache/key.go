package cache

import (
	"net/url"
)

// Key derives the cache key for a GET request. Query parameters given in
// query are merged with any already present in rawURL and serialized in
// sorted order, so equal requests map to equal keys. A URL that cannot be
// parsed is used verbatim.
func Key(rawURL string, query url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	merged := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	u.RawQuery = merged.Encode()
	u.Fragment = ""
	return u.String()
}
