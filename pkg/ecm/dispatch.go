package ecm

import (
	"context"
	"fmt"
)

// Node type names assigned to new nodes.
const (
	NodeTypeRoot         = "ecm:root"
	NodeTypeFolder       = "ecm:folder"
	NodeTypeDocument     = "ecm:document"
	NodeTypeHTML         = "ecm:html"
	NodeTypeImage        = "ecm:image"
	NodeTypeNotification = "ecm:notification"
	NodeTypeTag          = "ecm:tag"
	NodeTypeNewsFeed     = "ecm:newsfeed"
	NodeTypeError        = "ecm:error"
)

// dispatchRule is the creation strategy of one content type.
type dispatchRule struct {
	nodeType string

	// languageSubfolder places new nodes below a folder named after the
	// item's language inside the type root
	languageSubfolder bool
}

// dispatchTable must hold an entry for every ContentType.
var dispatchTable = map[ContentType]dispatchRule{
	ContentTypeDocument:     {nodeType: NodeTypeDocument},
	ContentTypeHTML:         {nodeType: NodeTypeHTML, languageSubfolder: true},
	ContentTypeImage:        {nodeType: NodeTypeImage},
	ContentTypeFolder:       {nodeType: NodeTypeFolder},
	ContentTypeNotification: {nodeType: NodeTypeNotification, languageSubfolder: true},
	ContentTypeTag:          {nodeType: NodeTypeTag},
	ContentTypeNewsFeed:     {nodeType: NodeTypeNewsFeed},
	ContentTypeError:        {nodeType: NodeTypeError},
}

func ruleFor(t ContentType) (dispatchRule, error) {
	rule, ok := dispatchTable[t]
	if !ok {
		return dispatchRule{}, fmt.Errorf("%w: %q", ErrInvalidContentType, t)
	}
	return rule, nil
}

// dispatcher decides where new nodes of a content type go and how they look.
type dispatcher struct {
	languages LanguageProvider
}

// clientRoot returns the absolute path of a client's top-level folder.
func (d *dispatcher) clientRoot(client string) string {
	return JoinPath(RootPath, d.languages.RootNodeName(client))
}

// typeRoot returns the absolute path of the type root for t.
func (d *dispatcher) typeRoot(t ContentType, client string) string {
	return JoinPath(d.clientRoot(client), d.languages.NodeRootFor(t, client))
}

// defaultParentPath returns the folder new items of this type are created in
// when the caller supplies no parent.
func (d *dispatcher) defaultParentPath(client string, item *ContentItem) (string, error) {
	rule, err := ruleFor(item.Type)
	if err != nil {
		return "", err
	}
	p := d.typeRoot(item.Type, client)
	if rule.languageSubfolder {
		lang := item.Language
		if lang == "" {
			lang = d.languages.DefaultLanguage()
		}
		seg, err := EscapeName(lang)
		if err != nil {
			return "", err
		}
		p = JoinPath(p, seg)
	}
	return p, nil
}

// resolveParent returns the existing folder a new node for item belongs in.
func (d *dispatcher) resolveParent(ctx context.Context, sess Session, client string, item *ContentItem) (*Node, error) {
	parentPath := item.ParentPath
	if parentPath == "" {
		var err error
		if parentPath, err = d.defaultParentPath(client, item); err != nil {
			return nil, err
		}
	}
	parentPath = CleanPath(parentPath)

	parent, ok, err := FindByPath(ctx, sess, parentPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NodeError{Path: parentPath, Op: "resolve_parent", Err: ErrParentNotFound}
	}
	return parent, nil
}

// newNode builds, without persisting, the leaf node for item below parent.
func (d *dispatcher) newNode(parent *Node, item *ContentItem) (*Node, error) {
	rule, err := ruleFor(item.Type)
	if err != nil {
		return nil, err
	}
	name, err := EscapeName(item.Name)
	if err != nil {
		return nil, err
	}
	return &Node{
		Path:       JoinPath(parent.Path, name),
		Name:       name,
		ParentPath: parent.Path,
		Type:       item.Type,
		NodeType:   rule.nodeType,
		Mixins:     item.mixins(),
	}, nil
}
