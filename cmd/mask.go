package main

import (
	"fmt"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/mask"
	"github.com/spf13/cobra"
)

func newMaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mask <cpf|cnpj|telefone> <value>",
		Short:     "Print a value formatted with the form's input mask",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(mask.KindCPF), string(mask.KindCNPJ), string(mask.KindPhone)},
		RunE: func(cmd *cobra.Command, args []string) error {
			masked, err := mask.Apply(mask.Kind(args[0]), args[1])
			if err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), masked)
			return nil
		},
	}
}
