package main

import (
	"fmt"

	"github.com/justa-cai/parrot-recorder/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRecordingsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "recordings",
		Short: "列出已保存的录音",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			st, err := store.New(cfg.RecordingsDir)
			if err != nil {
				return err
			}
			recs, err := st.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(out, "%s 中还没有录音\n", st.Dir())
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(out, "%s  %8d  %s\n", r.ModTime.Format("2006-01-02 15:04:05"), r.Size, r.Locator)
			}
			return nil
		},
	}
}
