package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/xizhibei/go-stdio-rpc/sitepatch"
)

func newFixLinksCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-links [file...]",
		Short: "Rewrite links to index.html as root-relative links",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = c.app.Site.Files
			}
			rules := append(sitepatch.FixLinks(), c.app.Site.Rules...)
			_, err := sitepatch.ApplyFiles(cmd.Context(), rules, paths, c.app.Site.Workers)
			return err
		},
	}
}

func newFixTemplateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-template [file...]",
		Short: "Repair broken LOCATION and GALLERY_JS placeholders",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 && c.app.Site.Template != "" {
				paths = []string{c.app.Site.Template}
			}
			if len(paths) == 0 {
				return errors.New("no template given")
			}
			_, err := sitepatch.ApplyFiles(cmd.Context(), sitepatch.FixTemplate(), paths, c.app.Site.Workers)
			return err
		},
	}
}

func newSpliceCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splice",
		Short: "Build a page from the base page's header and footer and a new body",
		RunE: func(cmd *cobra.Command, args []string) error {
			site := c.app.Site
			if site.Output == "" {
				return errors.New("no output page given")
			}

			page := site.Page
			if site.BodyFile != "" {
				body, err := os.ReadFile(site.BodyFile)
				if err != nil {
					return errors.Wrap(err, "read body")
				}
				page.Body = string(body)
			}

			return sitepatch.SpliceFile(site.Base, site.Output, page)
		},
	}

	flags := cmd.Flags()
	flags.String("base", "", "base page")
	flags.String("out", "", "output page")
	flags.String("body", "", "file holding the new body HTML")
	flags.String("title", "", "page title")
	flags.String("description", "", "meta description")

	bind(c.v, flags.Lookup("base"), "site.base")
	bind(c.v, flags.Lookup("out"), "site.output")
	bind(c.v, flags.Lookup("body"), "site.body_file")
	bind(c.v, flags.Lookup("title"), "site.page.title")
	bind(c.v, flags.Lookup("description"), "site.page.description")

	return cmd
}
