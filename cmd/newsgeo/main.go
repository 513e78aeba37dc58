package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"newsgeo"
)

func main() {
	// Load .env file if present; the embedding stage checks for the key it
	// needs, the offline stages run without one.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	newsgeo.Config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	rootCmd := &cobra.Command{
		Use:   "newsgeo",
		Short: "Adaptive spatial-semantic news clustering CLI",
	}

	rootCmd.AddCommand(newsgeo.ClassifyArticlesCmd)
	rootCmd.AddCommand(newsgeo.EmbedArticlesCmd)
	rootCmd.AddCommand(newsgeo.ClusterArticlesCmd)
	rootCmd.AddCommand(newsgeo.EvaluateClustersCmd)
	rootCmd.AddCommand(newsgeo.CompareMethodsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: classify -> embed -> cluster (both modes) -> compare",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Running full pipeline...")
		newsgeo.ClassifyArticlesCmd.Run(cmd, args)
		newsgeo.EmbedArticlesCmd.Run(cmd, args)

		for _, mode := range []string{"fixed", "adaptive"} {
			if err := newsgeo.ClusterArticlesCmd.Flags().Set("mode", mode); err != nil {
				log.Printf("Failed to set cluster mode: %v", err)
				return
			}
			newsgeo.ClusterArticlesCmd.Run(cmd, args)
		}

		newsgeo.CompareMethodsCmd.Run(cmd, args)
		log.Println("Pipeline complete.")
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove derived weights and cluster artifacts (keeps the embedding cache)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := os.Remove(newsgeo.WeightsFile); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove %s: %v", newsgeo.WeightsFile, err)
		}

		files, err := os.ReadDir(newsgeo.ClustersDir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Failed to read %s: %v", newsgeo.ClustersDir, err)
			}
		} else {
			for _, file := range files {
				if file.IsDir() {
					continue
				}
				if err := os.Remove(filepath.Join(newsgeo.ClustersDir, file.Name())); err != nil {
					log.Printf("Failed to remove %s: %v", file.Name(), err)
				}
			}
		}

		log.Println("Cleaned weights and cluster artifacts.")
	},
}
