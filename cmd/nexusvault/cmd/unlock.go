package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xn1ku/nexusvault/vault"
)

var errDenied = errors.New("access denied")

func newUnlockCmd(c *cli) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Check a passphrase against the payload and list its secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			p, err := loadPayload(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pass, err := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).passphrase("Passphrase: ")
			if err != nil {
				return err
			}

			session := vault.NewSession(nil, p, vault.WithLogger(log))
			defer session.Lock()

			out := cmd.OutOrStdout()
			err = session.Unlock(cmd.Context(), pass)
			if errors.Is(err, vault.ErrAccessDenied) || errors.Is(err, vault.ErrExpired) {
				color.New(color.FgRed, color.Bold).Fprintln(out, "Access Denied")
				fmt.Fprintf(out, "reason: %s\n", session.Reason())
				cmd.SilenceErrors = true
				return errDenied
			}
			if err != nil {
				return err
			}

			color.New(color.FgGreen, color.Bold).Fprintln(out, "Access Granted")
			fmt.Fprintf(out, "expires: %s\n", p.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			for _, name := range session.SecretNames() {
				if !reveal {
					fmt.Fprintf(out, "  %s\n", name)
					continue
				}
				v, err := session.Reveal(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s=%s\n", name, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secret values as well as names")
	return cmd
}
