package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/techmap/internal/costfile"
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/report"
	"github.com/sells-group/techmap/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <input> <output>",
	Short: "Check that an output table is a faithful canonicalization of its input",
	Long:  "Compares two cost tables row by row: row counts, untouched excluded and unrecognized rows, canonical names on mapped rows, and matching headers.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		ioOpts, err := costfileOptions()
		if err != nil {
			return err
		}

		in, err := costfile.Read(ctx, args[0], ioOpts)
		if err != nil {
			return err
		}
		out, err := costfile.Read(ctx, args[1], ioOpts)
		if err != nil {
			return err
		}

		v := validate.ValidateDatasets(reg, in, out)
		rep := report.Emit(nil, v)
		rep.RegistryDigest = reg.Digest()
		rep.Status = validationStatus(v)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, err := report.JSON(rep)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
		} else {
			fmt.Fprint(os.Stdout, report.Markdown(rep))
		}

		if v.Failed() {
			return eris.Wrap(v.Err(), "validate")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(validateCmd)
}

func validationStatus(v *validate.Report) model.RunStatus {
	switch {
	case v.Failed():
		return model.RunStatusFailure
	case v.HasWarnings():
		return model.RunStatusSuccessWithWarnings
	default:
		return model.RunStatusSuccess
	}
}
