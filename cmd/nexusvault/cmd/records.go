package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/storage/driver"
)

func newRecordsCmd(c *cli) *cobra.Command {
	records := &cobra.Command{
		Use:   "records",
		Short: "Inspect the record store",
	}
	records.AddCommand(&cobra.Command{
		Use:       "list <collection>",
		Short:     "Print a collection as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{storage.CollectionBlogs, storage.CollectionHacks, storage.CollectionSecrets, storage.CollectionProjects, storage.CollectionContent},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			backend, err := driver.Open(cmd.Context(), driver.Config{
				URL:      cfg.Store.URL,
				Key:      cfg.Store.Key,
				Database: cfg.Store.Database,
			}, log)
			if err != nil {
				return err
			}
			data := storage.NewDataAccess(backend)
			defer data.Close()

			res, ok := data.Resource(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q", args[0])
			}
			items, err := res.ListAny(cmd.Context())
			if err != nil {
				return err
			}
			if secrets, ok := items.([]storage.Secret); ok {
				for i := range secrets {
					secrets[i].Value = "[redacted]"
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	})
	return records
}
