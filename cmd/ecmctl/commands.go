package main

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

// NewProvisionCommand creates the provision command
func NewProvisionCommand(a *app) *cobra.Command {
	var parent, folder string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the folder layout of a client",
		Long: `Create the client root, its type roots and the language folders below the
HTML and notification roots. With --parent and --folder only the language
folders below <parent>/<folder> are created. Existing folders are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			if parent != "" || folder != "" {
				if parent == "" || folder == "" {
					return fmt.Errorf("--parent and --folder must be used together")
				}
				if err := svc.ProvisionLanguageFolders(cmd.Context(), a.client, parent, folder); err != nil {
					return fmt.Errorf("provision failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Language folders provisioned below %s\n", ecm.JoinPath(parent, folder))
				return nil
			}

			if err := svc.ProvisionClient(cmd.Context(), a.client); err != nil {
				return fmt.Errorf("provision failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client %s provisioned\n", a.client)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent path of the folder to provision")
	cmd.Flags().StringVar(&folder, "folder", "", "folder name below parent")

	return cmd
}

// NewMkdirCommand creates the mkdir command
func NewMkdirCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder path below the client documents root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			path, err := svc.EnsureFolderPath(cmd.Context(), a.client, args[0])
			if err != nil {
				return fmt.Errorf("mkdir failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Folder path ready: %s\n", path)
			return nil
		},
	}
}

// NewPutCommand creates the put command
func NewPutCommand(a *app) *cobra.Command {
	var (
		typeName   string
		name       string
		parent     string
		language   string
		viewID     string
		mimeType   string
		label      string
		comment    string
		tags       []string
		versioning bool
		approval   bool
		system     bool
		inactive   bool
	)

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Create or update a content item from a file",
		Long: `Save the content of <file> as a content item. HTML, notification and
newsfeed items take the file as their body; other types store it as a binary
payload. An item with the same --view-id and --language is updated and moved
when --name or --parent change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ecm.ParseContentType(typeName)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			var opts []ecm.ItemOption
			if versioning {
				opts = append(opts, ecm.WithVersioning())
			}
			if approval {
				opts = append(opts, ecm.WithMandatoryApproval())
			}
			item := ecm.NewContentItem(t, name, opts...)
			item.ViewID = viewID
			item.Language = language
			item.ParentPath = parent
			item.Version = label
			item.Comment = comment
			item.Tags = tags
			item.System = system
			item.Active = !inactive

			switch {
			case t.HasBody():
				item.HTMLBody = string(data)
			case t != ecm.ContentTypeFolder:
				if mimeType == "" {
					mimeType = mime.TypeByExtension(filepath.Ext(args[0]))
				}
				item.Binary = &ecm.Binary{Data: data, MimeType: mimeType}
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.Save(cmd.Context(), a.client, item); err != nil {
				return fmt.Errorf("save failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s\n", item.Path)
			fmt.Fprintf(out, "View ID:  %s\n", item.ViewID)
			fmt.Fprintf(out, "Language: %s\n", item.Language)
			if item.Version != "" {
				fmt.Fprintf(out, "Version:  %s\n", item.Version)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", string(ecm.ContentTypeDocument), "content type")
	cmd.Flags().StringVarP(&name, "name", "n", "", "item name (default: file name)")
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent folder path (default: type root of the client)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "language (default: configured default language)")
	cmd.Flags().StringVar(&viewID, "view-id", "", "view id of an existing item")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "payload MIME type (default: from file extension)")
	cmd.Flags().StringVar(&label, "version", "", "version label for versionable items")
	cmd.Flags().StringVar(&comment, "comment", "", "comment stored with the content")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().BoolVar(&versioning, "versioning", false, "keep a version history")
	cmd.Flags().BoolVar(&approval, "mandatory-approval", false, "require approval before publication")
	cmd.Flags().BoolVar(&system, "system", false, "mark as system content")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark as inactive")

	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand(a *app) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Show a content item",
		Long:  `Print the metadata of the item at <path>. With --output the payload or body is written to a file ("-" for stdout).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			item, err := svc.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputPath != "" {
				return writeContent(out, outputPath, item)
			}

			fmt.Fprintf(out, "Path:      %s\n", item.Path)
			fmt.Fprintf(out, "Name:      %s\n", item.Name)
			fmt.Fprintf(out, "Type:      %s\n", item.Type)
			fmt.Fprintf(out, "View ID:   %s\n", item.ViewID)
			fmt.Fprintf(out, "Language:  %s\n", item.Language)
			fmt.Fprintf(out, "Active:    %t\n", item.Active)
			fmt.Fprintf(out, "Created:   %s\n", item.CreatedAt.Format("2006-01-02 15:04:05"))
			if item.Version != "" {
				fmt.Fprintf(out, "Version:   %s\n", item.Version)
			}
			if len(item.Tags) > 0 {
				fmt.Fprintf(out, "Tags:      %s\n", strings.Join(item.Tags, ", "))
			}
			if item.Binary != nil {
				fmt.Fprintf(out, "MIME Type: %s\n", item.Binary.MimeType)
				fmt.Fprintf(out, "Size:      %d bytes\n", item.Binary.Size)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the payload or body to this file")

	return cmd
}

func writeContent(stdout io.Writer, outputPath string, item *ecm.ContentItem) error {
	var data []byte
	switch {
	case item.Binary != nil:
		data = item.Binary.Data
	case item.Type.HasBody():
		data = []byte(item.HTMLBody)
	default:
		return fmt.Errorf("%s has no content", item.Path)
	}

	if outputPath == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	fmt.Fprintf(stdout, "Saved to: %s\n", outputPath)
	return nil
}

// NewListCommand creates the ls command
func NewListCommand(a *app) *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List the contents of a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ecm.RootPath
			if len(args) == 1 {
				path = args[0]
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			items, err := svc.FolderContents(cmd.Context(), path, deep)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().BoolVarP(&deep, "recursive", "r", false, "include all descendants")

	return cmd
}

// NewFindCommand creates the find command
func NewFindCommand(a *app) *cobra.Command {
	var (
		activeOnly bool
		language   string
	)

	cmd := &cobra.Command{
		Use:   "find <view-id>",
		Short: "List the language variants of a view id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			items, err := svc.ListByViewID(cmd.Context(), args[0], activeOnly, language)
			if err != nil {
				return fmt.Errorf("find failed: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active items")
	cmd.Flags().StringVarP(&language, "language", "l", "", "only this language")

	return cmd
}

// NewChildrenCommand creates the children command
func NewChildrenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "children <view-id>",
		Short: "List every non-system descendant of a view id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			items, err := svc.Children(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("children failed: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}
}

func printItems(w io.Writer, items []*ecm.ContentItem) error {
	if len(items) == 0 {
		fmt.Fprintln(w, "No content found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPATH\tVIEW ID\tLANGUAGE\tVERSION")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.Type, item.Path, item.ViewID, item.Language, item.Version)
	}
	return tw.Flush()
}

// NewDeleteCommand creates the rm command
func NewDeleteCommand(a *app) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a content item and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			// Require confirmation unless --yes flag is set
			if !confirm {
				fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to delete %s and everything below it? (y/N): ", path)
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.TrimSpace(response)
				if response != "y" && response != "Y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
					return nil
				}
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), path); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "skip confirmation prompt")

	return cmd
}

// NewVersionsCommand creates the versions command
func NewVersionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <path>",
		Short: "List the version history of an item, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			history, err := svc.ContentVersions(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("versions failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(history) == 0 {
				fmt.Fprintln(out, "No versions.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tCREATED\tCOMMENT")
			for _, rec := range history {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Label, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Properties.Comment)
			}
			return tw.Flush()
		},
	}
}

// NewDeleteVersionCommand creates the rmversion command
func NewDeleteVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rmversion <path> <label>",
		Short: "Delete one version of an item",
		Long:  `Delete one version record. Deleting the latest version restores the previous one onto the item.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.DeleteVersion(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("delete version failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version %s of %s deleted\n", args[1], args[0])
			return nil
		},
	}
}

// NewRegisterTypesCommand creates the register-types command
func NewRegisterTypesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register-types <file>",
		Short: "Register node type and mixin definitions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if err := svc.RegisterTypeDefinitions(cmd.Context(), f); err != nil {
				return fmt.Errorf("register failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Type definitions from %s registered\n", args[0])
			return nil
		},
	}
}
