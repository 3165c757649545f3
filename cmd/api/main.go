package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Citas por clínica con reconciliación automática de no-shows",
	Long: `API de citas por clínica.

El comando serve levanta la API HTTP y el reconciler de la sesión actual:
las citas confirmed/skipped cuya hora pasó hace más del margen
(OVERDUE_GRACE, 5h por defecto) se marcan no_show cada SWEEP_INTERVAL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "archivo de config opcional (yaml/toml/json); env tiene prioridad")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
