package domain

// Page is one page of a claim document: extracted text plus an optional
// rendered image for vision strategies.
type Page struct {
	Number int // 1-based
	Text   string
	Image  []byte // PNG, nil when only text was extracted
}

// Document is the input to an extraction run. Byte-level PDF handling happens
// upstream; the core only sees extracted text and rendered pages.
type Document struct {
	FileName  string
	SizeBytes int64
	Pages     []Page
}

// SizeMB returns the document size in megabytes.
func (d Document) SizeMB() float64 { return float64(d.SizeBytes) / (1024 * 1024) }

// PageCount returns the number of pages.
func (d Document) PageCount() int { return len(d.Pages) }

// TextLength returns the total extracted text length across pages.
func (d Document) TextLength() int {
	var n int
	for _, p := range d.Pages {
		n += len(p.Text)
	}
	return n
}

// TextDensity returns extracted characters per megabyte. A near-zero density
// on a large file means the document is scan-only.
func (d Document) TextDensity() float64 {
	mb := d.SizeMB()
	if mb <= 0 {
		return float64(d.TextLength())
	}
	return float64(d.TextLength()) / mb
}

// Text concatenates all page texts with page separators.
func (d Document) Text() string {
	var b []byte
	for i, p := range d.Pages {
		if i > 0 {
			b = append(b, '\n', '\n')
		}
		b = append(b, p.Text...)
	}
	return string(b)
}

// PageByNumber returns the page with the given 1-based number.
func (d Document) PageByNumber(n int) (Page, bool) {
	if n < 1 || n > len(d.Pages) {
		return Page{}, false
	}
	return d.Pages[n-1], true
}
