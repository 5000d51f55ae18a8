package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/payload"
)

type sealFlags struct {
	in       string
	out      string
	ttl      time.Duration
	token    bool
	argon2id bool
	legacy   bool
}

func newSealCmd(c *cli) *cobra.Command {
	var f sealFlags
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a JSON object of secrets into a payload",
		Long: `Reads a JSON object mapping secret names to string values and prints the
sealed payload. The passphrase is prompted for twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeal(cmd, c, f)
		},
	}
	cmd.Flags().StringVarP(&f.in, "in", "i", "-", "secrets JSON file, - for stdin")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the payload to this file instead of stdout")
	cmd.Flags().DurationVar(&f.ttl, "ttl", 24*time.Hour, "payload lifetime")
	cmd.Flags().BoolVar(&f.token, "token", false, "emit a signed JWT using NEXUS_PAYLOAD_TOKEN_KEY")
	cmd.Flags().BoolVar(&f.argon2id, "argon2id", false, "derive the key with Argon2id instead of PBKDF2")
	cmd.Flags().BoolVar(&f.legacy, "legacy", false, "use the OpenSSL-compatible CBC format")
	return cmd
}

func runSeal(cmd *cobra.Command, c *cli, f sealFlags) error {
	cfg, _, err := c.load()
	if err != nil {
		return err
	}
	if f.token && cfg.Payload.TokenKey == "" {
		return errors.New("--token needs NEXUS_PAYLOAD_TOKEN_KEY")
	}

	in := cmd.InOrStdin()
	if f.in != "-" {
		file, err := os.Open(f.in)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}
	var secrets map[string]string
	dec := json.NewDecoder(in)
	if err := dec.Decode(&secrets); err != nil {
		return fmt.Errorf("reading secrets: %w", err)
	}

	// Piped secrets share the stream with the passphrase lines that follow.
	promptIn := cmd.InOrStdin()
	if f.in == "-" && !isTerminal(in) {
		rest := bufio.NewReader(io.MultiReader(dec.Buffered(), in))
		skipLineEnd(rest)
		promptIn = rest
	}
	pass, err := newPrompter(promptIn, cmd.ErrOrStderr()).confirmedPassphrase()
	if err != nil {
		return err
	}

	var opts []payload.SealOption
	if f.argon2id {
		opts = append(opts, payload.WithKDF(crypto.Argon2idKDFParams()))
	}
	if f.legacy {
		opts = append(opts, payload.WithLegacyCipher())
	}
	p, err := payload.Seal(secrets, pass, f.ttl, opts...)
	if err != nil {
		return err
	}

	var encoded string
	if f.token {
		encoded, err = payload.EncodeToken(p, []byte(cfg.Payload.TokenKey))
	} else {
		encoded, err = payload.Encode(p)
	}
	if err != nil {
		return err
	}

	if f.out != "" {
		return os.WriteFile(f.out, []byte(encoded+"\n"), 0o600)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
	return err
}

// skipLineEnd drops the line terminator that follows the JSON document.
func skipLineEnd(r *bufio.Reader) {
	if b, err := r.Peek(1); err == nil && b[0] == '\r' {
		_, _ = r.Discard(1)
	}
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		_, _ = r.Discard(1)
	}
}
