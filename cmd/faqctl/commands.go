package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/campus-assistant/backend/internal/analysis/search"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

type rootOptions struct {
	kbPath   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "faqctl",
		Short: "Inspect and chat with the campus assistant knowledge base",
		Long: `Inspect and chat with the campus assistant knowledge base.

Subcommands:
  search    - Resolve free text to a canned response
  menu      - Show a menu and its options
  validate  - Check a knowledge base file
  chat      - Talk to the assistant in the terminal`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.kbPath, "kb", os.Getenv("KNOWLEDGE_PATH"), "knowledge base YAML file (default: embedded seed)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		newSearchCmd(opts),
		newMenuCmd(opts),
		newValidateCmd(opts),
		newChatCmd(opts),
	)
	return root
}

func (o *rootOptions) knowledge() (*knowledge.Base, error) {
	kb, err := knowledge.LoadFile(o.kbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return kb, nil
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <text...>",
		Short: "Resolve free text to a canned response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := opts.knowledge()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			key, ok := search.FromKnowledge(kb).Search(strings.Join(args, " "))
			if !ok {
				fmt.Fprintln(out, "no match")
				fmt.Fprintln(out, kb.Messages().Fallback)
				return nil
			}

			fmt.Fprintf(out, "key: %s\n", key)
			if text, ok := kb.Response(key); ok {
				fmt.Fprintln(out, text)
			} else {
				fmt.Fprintln(out, "(no response text for this key)")
			}
			return nil
		},
	}
}

func newMenuCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu [id]",
		Short: "Show a menu and its options",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := opts.knowledge()
			if err != nil {
				return err
			}

			id := knowledge.RootMenuID
			if len(args) == 1 {
				id = args[0]
			}
			menu, ok := kb.Menu(id)
			if !ok {
				return fmt.Errorf("unknown menu %q (known: %s)", id, strings.Join(kb.MenuIDs(), ", "))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(kb.Breadcrumb(id), " > "))
			fmt.Fprintln(out, strings.Repeat("─", 40))
			printOptions(out, menu.Options)
			return nil
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a knowledge base file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.kbPath = args[0]
			}
			kb, err := opts.knowledge()
			if err != nil {
				return err
			}

			source := opts.kbPath
			if source == "" {
				source = "embedded seed"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (%d menus, %d keyword entries, %d synonym groups)\n",
				source, len(kb.MenuIDs()), len(kb.Keywords()), len(kb.Synonyms()))

			for _, entry := range kb.Keywords() {
				if _, ok := kb.Response(entry.Key); !ok {
					fmt.Fprintf(out, "warning: keyword key %q has no response and is unreachable\n", entry.Key)
				}
			}
			return nil
		},
	}
}

func printOptions(out io.Writer, options []knowledge.MenuOption) {
	for i, opt := range options {
		if opt.Description != "" {
			fmt.Fprintf(out, "  %d. %s - %s\n", i+1, opt.Label, opt.Description)
			continue
		}
		fmt.Fprintf(out, "  %d. %s\n", i+1, opt.Label)
	}
}
