package ebook

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
)

// container opens an EPUB file and exposes its spine documents in reading
// order, following the OCF container.xml → content.opf manifest+spine
// chain.
type container struct {
	path    string
	reader  *zip.ReadCloser
	docPath string // directory containing content.opf, for resolving relative hrefs
	spine   []string
}

type ocfContainer struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Manifest struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// openContainer opens filePath as a zip archive and parses its manifest and
// spine to produce an ordered list of sub-document paths.
func openContainer(filePath string) (*container, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s as a zip container: %w", filePath, err)
	}

	rootfile, err := readOCFRootfile(zr)
	if err != nil {
		zr.Close()
		return nil, err
	}

	pkg, err := readOPF(zr, rootfile)
	if err != nil {
		zr.Close()
		return nil, err
	}

	idToHref := make(map[string]string, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		idToHref[item.ID] = item.Href
	}

	docDir := path.Dir(rootfile)
	spine := make([]string, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := idToHref[ref.IDRef]
		if !ok {
			continue
		}
		spine = append(spine, path.Join(docDir, href))
	}

	return &container{path: filePath, reader: zr, docPath: docDir, spine: spine}, nil
}

func readOCFRootfile(zr *zip.ReadCloser) (string, error) {
	f, err := findInZip(zr, "META-INF/container.xml")
	if err != nil {
		return "", err
	}
	defer f.Close()

	var oc ocfContainer
	if err := xml.NewDecoder(f).Decode(&oc); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(oc.Rootfiles.Rootfile) == 0 {
		return "", fmt.Errorf("container.xml has no rootfile entries")
	}
	return oc.Rootfiles.Rootfile[0].FullPath, nil
}

func readOPF(zr *zip.ReadCloser, rootfile string) (*opfPackage, error) {
	f, err := findInZip(zr, rootfile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pkg opfPackage
	if err := xml.NewDecoder(f).Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rootfile, err)
	}
	return &pkg, nil
}

func findInZip(zr *zip.ReadCloser, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s not found in container", name)
}

// open returns a reader for a named sub-document path (as recorded in the
// spine).
func (c *container) open(docPath string) (io.ReadCloser, error) {
	return findInZip(c.reader, docPath)
}

func (c *container) close() error {
	return c.reader.Close()
}

// contentHash returns the SHA-256 hash of the file's bytes, used to key the
// EbookIndex cache.
func contentHash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
