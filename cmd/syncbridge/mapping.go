package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/syncbridge/internal/home"
	"github.com/jackzampolin/syncbridge/internal/store"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage audiobook/ebook mappings",
}

func openStore() (*store.ProgressStore, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return store.Open(h.MappingsPath(), h.StatesPath())
}

var mappingAddCmd = &cobra.Command{
	Use:   "add <ab_id> <es_doc_id> <ebook_file>",
	Short: "Add a new audiobook/ebook mapping",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		m := store.Mapping{
			ABID:      args[0],
			ESDocID:   args[1],
			EbookFile: args[2],
		}
		if err := s.AddMapping(m); err != nil {
			return err
		}
		fmt.Printf("added mapping %s\n", m.ABID)
		return nil
	},
}

var mappingRmCmd = &cobra.Command{
	Use:   "rm <ab_id>",
	Short: "Remove a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		removed, err := s.RemoveMapping(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no mapping found for ab_id %q", args[0])
		}
		fmt.Printf("removed mapping %s\n", args[0])
		return nil
	},
}

var mappingLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		mappings := s.ListMappings()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AB_ID\tES_DOC_ID\tEBOOK_FILE\tSTATUS")
		for _, m := range mappings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ABID, m.ESDocID, m.EbookFile, m.Status)
		}
		return w.Flush()
	},
}

func init() {
	mappingCmd.AddCommand(mappingAddCmd, mappingRmCmd, mappingLsCmd)
}
