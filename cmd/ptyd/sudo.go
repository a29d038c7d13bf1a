package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/acolita/ptyd/internal/logging"
	"github.com/acolita/ptyd/internal/security"
	"github.com/acolita/ptyd/internal/sudo"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func newSudoCmd(opts *rootOptions) *cobra.Command {
	var (
		store bool
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "sudo -- COMMAND...",
		Short: "Run a command through the sudo executor, prompting for the password",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

			svc, err := sudo.NewServiceFromConfig(cfg.Sudo, sudo.WithServiceLogger(logger))
			if err != nil {
				return err
			}

			password, err := promptPassword()
			if err != nil {
				return err
			}
			defer security.WipeBytes(password)

			if dir == "" {
				dir, _ = os.Getwd()
			}
			res, runErr := svc.Run(cmd.Context(), sudo.Request{
				SessionID: "cli",
				Command:   strings.Join(args, " "),
				Dir:       dir,
				Password:  password,
			})
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
				fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
				if res.ErrorType != sudo.ErrorNone {
					fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", sudo.SuggestFix(res.ErrorType))
				}
			}
			if runErr != nil {
				return runErr
			}

			if store && res.Success {
				if err := storePassword(password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "password stored in keyring")
			}
			if !res.Success {
				return fmt.Errorf("command exited with status %d", res.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "save the password in the OS keyring after a successful run")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory (default: current directory)")
	return cmd
}

func promptPassword() ([]byte, error) {
	var pw string
	input := huh.NewInput().
		Title("Sudo password").
		EchoMode(huh.EchoModePassword).
		Value(&pw)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return nil, err
	}
	if pw == "" {
		return nil, errors.New("no password entered")
	}
	return []byte(pw), nil
}

func storePassword(password []byte) error {
	u, err := user.Current()
	if err != nil {
		return err
	}
	ks := security.NewKeyringStore()
	if !ks.IsEnabled() {
		return security.ErrKeyringUnavailable
	}
	return ks.StoreSudoPassword(u.Username, password)
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check COMMAND...",
		Short: "Report whether a command needs elevated privileges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			command := strings.Join(args, " ")
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"command":       command,
				"requires_sudo": sudo.RequiresPrivilege(command),
				"prediction":    sudo.NewDetector().Predict(command),
				"sudo":          sudo.GetInfo(cmd.Context(), cfg.Sudo.Binary),
			})
		},
	}
}
