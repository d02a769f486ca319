package ecm

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentType is the closed set of node kinds the repository knows about.
type ContentType string

// Content type constants (typed).
const (
	ContentTypeDocument     ContentType = "document"
	ContentTypeHTML         ContentType = "html"
	ContentTypeImage        ContentType = "image"
	ContentTypeFolder       ContentType = "folder"
	ContentTypeNotification ContentType = "notification"
	ContentTypeTag          ContentType = "tag"
	ContentTypeNewsFeed     ContentType = "newsfeed"
	ContentTypeError        ContentType = "error"
)

// AllContentTypes lists every ContentType in declaration order.
var AllContentTypes = []ContentType{
	ContentTypeDocument,
	ContentTypeHTML,
	ContentTypeImage,
	ContentTypeFolder,
	ContentTypeNotification,
	ContentTypeTag,
	ContentTypeNewsFeed,
	ContentTypeError,
}

// ParseContentType converts a case-insensitive name into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(AllContentTypes, t) {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
	return t, nil
}

func (t ContentType) String() string {
	return string(t)
}

// HasBody reports whether items of this type carry an HTML body.
func (t ContentType) HasBody() bool {
	switch t {
	case ContentTypeHTML, ContentTypeNotification, ContentTypeNewsFeed:
		return true
	}
	return false
}

// Mixin names attached to nodes.
const (
	MixinManaged           = "ecm:managed"
	MixinVersionable       = "mix:versionable"
	MixinMandatoryApproval = "ecm:mandatoryApproval"
)

// RootPath is the path of the tree root.
const RootPath = "/"

// Node is an addressable entry in the content tree as seen through a Session.
//
// Path is always JoinPath(ParentPath, Name) except for the root, whose
// ParentPath is empty. ChildPaths is filled by stores on read, in insertion
// order.
type Node struct {
	ID          uuid.UUID   `json:"id"`
	Path        string      `json:"path"`
	Name        string      `json:"name"`
	ParentPath  string      `json:"parent_path,omitempty"`
	Type        ContentType `json:"type"`
	NodeType    string      `json:"node_type"`
	Mixins      []string    `json:"mixins,omitempty"`
	Properties  Properties  `json:"properties"`
	CheckedOut  bool        `json:"checked_out"`
	BaseVersion string      `json:"base_version,omitempty"`
	ChildPaths  []string    `json:"child_paths,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// HasMixin reports whether the node carries the named mixin.
func (n *Node) HasMixin(name string) bool {
	return slices.Contains(n.Mixins, name)
}

// IsVersionable reports whether the node takes part in the versioning protocol.
func (n *Node) IsVersionable() bool {
	return n.HasMixin(MixinVersionable)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Mixins = slices.Clone(n.Mixins)
	c.ChildPaths = slices.Clone(n.ChildPaths)
	c.Properties = n.Properties.Clone()
	return &c
}

// Properties is the persisted content payload of a node. Version records keep
// a full copy of it.
type Properties struct {
	ViewID     string    `json:"view_id,omitempty"`
	Language   string    `json:"language,omitempty"`
	Active     bool      `json:"active"`
	System     bool      `json:"system"`
	External   bool      `json:"external"`
	Permission string    `json:"permission,omitempty"`
	HTMLBody   string    `json:"html_body,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Binary payload reference. The bytes live in the BlobStore under BlobKey.
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	BlobKey  string `json:"blob_key,omitempty"`
}

// Clone returns a deep copy of the properties.
func (p Properties) Clone() Properties {
	p.Tags = slices.Clone(p.Tags)
	return p
}

// Equal reports whether two property sets describe the same content.
func (p Properties) Equal(o Properties) bool {
	return p.ViewID == o.ViewID &&
		p.Language == o.Language &&
		p.Active == o.Active &&
		p.System == o.System &&
		p.External == o.External &&
		p.Permission == o.Permission &&
		p.HTMLBody == o.HTMLBody &&
		slices.Equal(p.Tags, o.Tags) &&
		p.Comment == o.Comment &&
		p.CreatedAt.Equal(o.CreatedAt) &&
		p.MimeType == o.MimeType &&
		p.Size == o.Size &&
		p.Checksum == o.Checksum &&
		p.BlobKey == o.BlobKey
}

// VersionRecord is one checked-in state of a versionable node.
type VersionRecord struct {
	Label      string     `json:"label"`
	Seq        int64      `json:"seq"`
	Path       string     `json:"path"`
	Properties Properties `json:"properties"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TypeDefinition declares a node type or a mixin that nodes may reference.
type TypeDefinition struct {
	Name       string   `json:"name" yaml:"name"`
	Mixin      bool     `json:"mixin" yaml:"mixin"`
	Supertypes []string `json:"supertypes,omitempty" yaml:"supertypes"`
	Properties []string `json:"properties,omitempty" yaml:"properties"`
}
