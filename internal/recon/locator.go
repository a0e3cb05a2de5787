package recon

import "github.com/jackzampolin/syncbridge/internal/ebook"

// encodeLocator renders an ebook.Locator as the "docpath#elementid" anchor
// string ES expects.
func encodeLocator(loc ebook.Locator) string {
	return loc.DocPath + "#" + loc.ElementID
}
