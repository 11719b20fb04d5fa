package mpath

import "net/url"

// AsURL percent-encodes the raw bytes of the path for use as a URL path
// segment, mirroring cherrymusic's Path.as_url. The raw bytes (not the
// tunneled string form) are escaped, so undecodable bytes survive the trip
// as ordinary percent-escapes rather than as lone surrogates.
func (p Path) AsURL() string {
	return url.PathEscape(string(p.Bytes()))
}

// ParseURL decodes a percent-encoded URL path segment produced by AsURL
// back into a Path, with parent as its parent.
func ParseURL(encoded string, parent *Path, opts ...Option) (Path, error) {
	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return Path{}, err
	}
	return Construct(BytesToString([]byte(raw)), parent, opts...), nil
}
