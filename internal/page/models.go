package page

import (
	"time"
)

// Well-known keys of a page content document. Everything else is a
// page-section field owned by the page's own schema.
const (
	KeyPageID       = "pageId"
	KeyTitle        = "title"
	KeyDescription  = "description"
	KeyLastModified = "lastModified"
	KeyPublished    = "published"
)

// Defaults used when a record has to be synthesized without a seed file.
const (
	DefaultTitle       = "Untitled Page"
	DefaultDescription = "No description"
)

// TimeLayout is how lastModified is serialized inside content documents.
const TimeLayout = time.RFC3339Nano

// Content is an opaque page content document as stored in a page file.
type Content map[string]interface{}

// Record is the document-store row for a page.
type Record struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	PageID       string    `json:"pageId" bson:"pageId"`
	Title        string    `json:"title" bson:"title"`
	Description  string    `json:"description" bson:"description"`
	LastModified time.Time `json:"lastModified" bson:"lastModified"`
	IsPublished  bool      `json:"isPublished" bson:"isPublished"`
	Content      Content   `json:"content" bson:"content"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Summary is one entry of a page listing. Status is "error" for files that
// could not be parsed; Error then carries the reason.
type Summary struct {
	PageID       string     `json:"pageId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Published    bool       `json:"published"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
}

const (
	SourceDatabase = "database"
	SourceFile     = "file"

	StatusOK    = "ok"
	StatusError = "error"
)

// Clone returns a shallow copy.
func (c Content) Clone() Content {
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Content) str(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Content) PageID() string      { return c.str(KeyPageID) }
func (c Content) Title() string       { return c.str(KeyTitle) }
func (c Content) Description() string { return c.str(KeyDescription) }

// Published reads the publish flag; anything but a JSON true is false.
func (c Content) Published() bool {
	b, _ := c[KeyPublished].(bool)
	return b
}

// LastModified parses the lastModified field. ok is false when absent or
// unparseable.
func (c Content) LastModified() (time.Time, bool) {
	switch v := c[KeyLastModified].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Stamp sets lastModified to now.
func (c Content) Stamp(now time.Time) {
	c[KeyLastModified] = now.UTC().Format(TimeLayout)
}

// Merge shallow-merges update on top of base and stamps lastModified. Neither
// argument is modified.
func Merge(base, update Content, now time.Time) Content {
	out := base.Clone()
	for k, v := range update {
		out[k] = v
	}
	out.Stamp(now)
	return out
}

// Defaults is the document synthesized for a page with no seed.
func Defaults(pageID string) Content {
	return Content{
		KeyPageID:      pageID,
		KeyTitle:       DefaultTitle,
		KeyDescription: DefaultDescription,
		KeyPublished:   false,
	}
}

// NewRecord derives a record from a full content document.
func NewRecord(pageID string, doc Content) *Record {
	content := doc.Clone()
	content[KeyPageID] = pageID
	r := &Record{
		PageID:      pageID,
		Title:       content.Title(),
		Description: content.Description(),
		IsPublished: content.Published(),
		Content:     content,
	}
	if t, ok := content.LastModified(); ok {
		r.LastModified = t
	}
	return r
}

// Document returns the record as a content document, with the column values
// taking precedence over whatever the stored content says.
func (r *Record) Document() Content {
	doc := r.Content.Clone()
	doc[KeyPageID] = r.PageID
	doc[KeyTitle] = r.Title
	doc[KeyDescription] = r.Description
	doc[KeyPublished] = r.IsPublished
	if !r.LastModified.IsZero() {
		doc.Stamp(r.LastModified)
	}
	return doc
}

// Summary lists the record.
func (r *Record) Summary() Summary {
	lm := r.LastModified
	return Summary{
		PageID:       r.PageID,
		Title:        r.Title,
		Description:  r.Description,
		LastModified: &lm,
		Published:    r.IsPublished,
		Source:       SourceDatabase,
		Status:       StatusOK,
	}
}

// Clone deep-copies the record header and shallow-copies its content.
func (r *Record) Clone() *Record {
	out := *r
	out.Content = r.Content.Clone()
	return &out
}

// Patch is a partial record update. Nil fields are left alone; Content is
// shallow-merged onto the stored content.
type Patch struct {
	Title       *string
	Description *string
	IsPublished *bool
	Content     Content
}

// PatchFrom lifts the base fields present in update into a Patch.
func PatchFrom(update Content) Patch {
	p := Patch{Content: update.Clone()}
	delete(p.Content, KeyLastModified)
	delete(p.Content, KeyPageID)
	if v, ok := update[KeyTitle].(string); ok {
		p.Title = &v
	}
	if v, ok := update[KeyDescription].(string); ok {
		p.Description = &v
	}
	if v, ok := update[KeyPublished].(bool); ok {
		p.IsPublished = &v
	}
	return p
}

// Apply patches r in place and stamps it.
func (p Patch) Apply(r *Record, now time.Time) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.IsPublished != nil {
		r.IsPublished = *p.IsPublished
	}
	if r.Content == nil {
		r.Content = Content{}
	}
	r.Content = Merge(r.Content, p.Content, now)
	r.Content[KeyPageID] = r.PageID
	r.Content[KeyTitle] = r.Title
	r.Content[KeyDescription] = r.Description
	r.Content[KeyPublished] = r.IsPublished
	r.LastModified = now
	r.UpdatedAt = now
}
