package ecm

import (
	"context"
	"errors"
)

func (s *service) ProvisionLanguageFolders(ctx context.Context, client, parentPath, folderName string) error {
	sess, err := s.open(ctx, "provision_language_folders")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	if err := s.provisionLanguageFolders(ctx, sess, client, parentPath, folderName); err != nil {
		return nodeErr("provision_language_folders", parentPath, err)
	}
	return nil
}

// ProvisionClient creates the client root, every type root below it and the
// language subfolders of the HTML and notification roots. Folders that
// already exist are kept.
func (s *service) ProvisionClient(ctx context.Context, client string) error {
	sess, err := s.open(ctx, "provision_client")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	rootName := s.languages.RootNodeName(client)
	if err := s.ensureFolder(ctx, sess, RootPath, rootName); err != nil {
		return nodeErr("provision_client", RootPath, err)
	}

	clientRoot := s.dispatch.clientRoot(client)
	for _, name := range typeRootNames(s.languages, client) {
		if err := s.ensureFolder(ctx, sess, clientRoot, name); err != nil {
			return nodeErr("provision_client", clientRoot, err)
		}
		if err := s.provisionLanguageFolders(ctx, sess, client, clientRoot, name); err != nil {
			return nodeErr("provision_client", clientRoot, err)
		}
	}
	s.logger.InfoContext(ctx, "client provisioned", "client", client, "root", clientRoot)
	return nil
}

// provisionLanguageFolders creates one folder per supported language below
// parentPath/folderName when folderName is the client's HTML or notification
// root. Other folder names are ignored.
func (s *service) provisionLanguageFolders(ctx context.Context, sess Session, client, parentPath, folderName string) error {
	if folderName != s.languages.NodeRootFor(ContentTypeHTML, client) &&
		folderName != s.languages.NodeRootFor(ContentTypeNotification, client) {
		return nil
	}

	seg, err := EscapeName(folderName)
	if err != nil {
		return err
	}
	base := JoinPath(parentPath, seg)
	for _, lang := range s.languages.SupportedLanguages() {
		if err := s.ensureFolder(ctx, sess, base, lang); err != nil {
			return err
		}
	}
	return nil
}

// ensureFolder creates parentPath/name unless it exists.
func (s *service) ensureFolder(ctx context.Context, sess Session, parentPath, name string) error {
	if _, err := s.createFolder(ctx, sess, parentPath, name); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.logger.DebugContext(ctx, "folder already exists, skipping", "parent", parentPath, "name", name)
			return nil
		}
		return err
	}
	return nil
}
