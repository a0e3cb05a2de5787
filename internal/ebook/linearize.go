package ebook

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// block is one leaf of linearized text, tagged with the id of the nearest
// enclosing element that carries one. Read-along locators point at these
// ids.
type block struct {
	Text       string `json:"text"`
	DocPath    string `json:"doc_path"`
	ElementID  string `json:"element_id"`
	CharOffset int    `json:"char_offset"` // offset of this block's first rune within the document's full text
}

// linearizeDoc walks an XHTML sub-document and returns its text content
// split into blocks, one per non-empty text node, tagged
// with the nearest ancestor id (including its own).
func linearizeDoc(r io.Reader, docPath string) ([]block, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var blocks []block
	var offset int
	var walk func(n *html.Node, nearestID string)
	walk = func(n *html.Node, nearestID string) {
		id := nearestID
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val != "" {
					id = a.Val
				}
			}
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}

		if n.Type == html.TextNode {
			text := collapseSpace(n.Data)
			if text != "" {
				blocks = append(blocks, block{Text: text, DocPath: docPath, ElementID: id, CharOffset: offset})
				offset += len([]rune(text)) + 1 // +1 for the joining space inserted between blocks
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, id)
		}
	}
	walk(root, "")

	return blocks, nil
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
