// Command generate-config writes an example configuration file with every
// default filled in.
package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/drafthouse/internal/config"
)

const header = "# Drafthouse configuration example\n# Copy this file to config.yaml and customize as needed.\n# Secrets can be left empty and set through DATABASE_DSN, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY.\n\n"

func generate(w io.Writer) error {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error generating YAML: %w", err)
	}
	return enc.Close()
}

func main() {
	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if outputFile == "-" {
		if err := generate(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	f, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
		os.Exit(1)
	}
	if err := generate(f); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated example config: %s\n", outputFile)
}
