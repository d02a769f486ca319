package ecm

import "slices"

// Default folder names of the type roots below a client root.
const (
	DefaultDocumentsRoot     = "documents"
	DefaultHTMLRoot          = "html"
	DefaultImagesRoot        = "images"
	DefaultNotificationsRoot = "notifications"
	DefaultTagsRoot          = "tags"
)

// StaticLanguages is a LanguageProvider backed by fixed configuration.
type StaticLanguages struct {
	// ClientRoots maps a client id to its top-level folder name. Clients
	// without an entry use their id.
	ClientRoots map[string]string

	// TypeRoots maps a content type to its folder name below the client root.
	// Missing types fall back to DefaultTypeRoots.
	TypeRoots map[ContentType]string

	Languages []string
	Default   string
}

// DefaultTypeRoots is the type-root layout used when nothing else is configured.
func DefaultTypeRoots() map[ContentType]string {
	return map[ContentType]string{
		ContentTypeDocument:     DefaultDocumentsRoot,
		ContentTypeFolder:       DefaultDocumentsRoot,
		ContentTypeError:        DefaultDocumentsRoot,
		ContentTypeImage:        DefaultImagesRoot,
		ContentTypeHTML:         DefaultHTMLRoot,
		ContentTypeNewsFeed:     DefaultHTMLRoot,
		ContentTypeNotification: DefaultNotificationsRoot,
		ContentTypeTag:          DefaultTagsRoot,
	}
}

func (s *StaticLanguages) RootNodeName(client string) string {
	if root, ok := s.ClientRoots[client]; ok && root != "" {
		return root
	}
	return client
}

func (s *StaticLanguages) NodeRootFor(t ContentType, client string) string {
	if root, ok := s.TypeRoots[t]; ok && root != "" {
		return root
	}
	return DefaultTypeRoots()[t]
}

func (s *StaticLanguages) SupportedLanguages() []string {
	if len(s.Languages) == 0 {
		return []string{s.DefaultLanguage()}
	}
	return slices.Clone(s.Languages)
}

func (s *StaticLanguages) DefaultLanguage() string {
	if s.Default != "" {
		return s.Default
	}
	if len(s.Languages) > 0 {
		return s.Languages[0]
	}
	return "en"
}

// typeRootNames returns the distinct type-root folder names of a client in
// AllContentTypes order.
func typeRootNames(lp LanguageProvider, client string) []string {
	var names []string
	for _, t := range AllContentTypes {
		name := lp.NodeRootFor(t, client)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}
