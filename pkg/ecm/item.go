package ecm

import (
	"slices"
	"time"
)

// Binary is an optional payload attached to a content item.
type Binary struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// ContentItem is the caller-facing representation of a piece of content.
//
// Capabilities are fixed when the item is built with NewContentItem and
// decide which optional protocol steps Save runs; the remaining fields are
// plain data.
type ContentItem struct {
	ViewID     string      `json:"view_id"`
	Name       string      `json:"name"`
	Type       ContentType `json:"type"`
	Active     bool        `json:"active"`
	System     bool        `json:"system"`
	Language   string      `json:"language"`
	ParentPath string      `json:"parent_path,omitempty"`
	Path       string      `json:"path,omitempty"`
	Binary     *Binary     `json:"binary,omitempty"`
	HTMLBody   string      `json:"html_body,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Permission string      `json:"permission,omitempty"`
	External   bool        `json:"external"`

	// Version is the label requested for the next checkin; empty means
	// auto-increment. Comment is stored with the content and its versions.
	Version string `json:"version,omitempty"`
	Comment string `json:"comment,omitempty"`

	versionable       bool
	mandatoryApproval bool
}

// ItemOption configures capabilities of a new ContentItem
type ItemOption func(*ContentItem)

// WithVersioning marks the item as versionable
func WithVersioning() ItemOption {
	return func(c *ContentItem) {
		c.versionable = true
	}
}

// WithMandatoryApproval marks the item as requiring approval before publication
func WithMandatoryApproval() ItemOption {
	return func(c *ContentItem) {
		c.mandatoryApproval = true
	}
}

// NewContentItem creates an item of the given type and name.
func NewContentItem(t ContentType, name string, opts ...ItemOption) *ContentItem {
	item := &ContentItem{
		Type:   t,
		Name:   name,
		Active: true,
	}
	for _, opt := range opts {
		opt(item)
	}
	return item
}

// IsVersionable reports whether saves of this item are versioned.
func (c *ContentItem) IsVersionable() bool {
	return c.versionable
}

// RequiresMandatoryApproval reports whether the item needs approval.
func (c *ContentItem) RequiresMandatoryApproval() bool {
	return c.mandatoryApproval
}

// mixins returns the capability tags a node for this item carries.
func (c *ContentItem) mixins() []string {
	m := []string{MixinManaged}
	if c.versionable {
		m = append(m, MixinVersionable)
	}
	if c.mandatoryApproval {
		m = append(m, MixinMandatoryApproval)
	}
	return m
}

// properties maps the item onto its persisted form, keeping the binary
// reference of base when the item carries no new payload.
func (c *ContentItem) properties(base Properties) Properties {
	p := Properties{
		ViewID:     c.ViewID,
		Language:   c.Language,
		Active:     c.Active,
		System:     c.System,
		External:   c.External,
		Permission: c.Permission,
		Tags:       slices.Clone(c.Tags),
		Comment:    c.Comment,
		CreatedAt:  c.CreatedAt,
		MimeType:   base.MimeType,
		Size:       base.Size,
		Checksum:   base.Checksum,
		BlobKey:    base.BlobKey,
	}
	if c.Type.HasBody() {
		p.HTMLBody = c.HTMLBody
	}
	return p
}

// itemFromNode rebuilds a ContentItem from a stored node.
func itemFromNode(n *Node) (*ContentItem, error) {
	name := ""
	if n.Path != RootPath {
		var err error
		if name, err = UnescapeName(n.Name); err != nil {
			return nil, err
		}
	}
	p := n.Properties
	item := &ContentItem{
		ViewID:            p.ViewID,
		Name:              name,
		Type:              n.Type,
		Active:            p.Active,
		System:            p.System,
		Language:          p.Language,
		ParentPath:        n.ParentPath,
		Path:              n.Path,
		HTMLBody:          p.HTMLBody,
		Tags:              slices.Clone(p.Tags),
		CreatedAt:         p.CreatedAt,
		Permission:        p.Permission,
		External:          p.External,
		Version:           n.BaseVersion,
		Comment:           p.Comment,
		versionable:       n.HasMixin(MixinVersionable),
		mandatoryApproval: n.HasMixin(MixinMandatoryApproval),
	}
	if p.BlobKey != "" {
		item.Binary = &Binary{MimeType: p.MimeType, Size: p.Size}
	}
	return item, nil
}
