package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"facturas/internal/model"
	"facturas/internal/parser/dian"
)

var (
	processOutput  string
	processTimeout time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Normalize invoice XML files",
	Long: `Normalize one or more DIAN invoice XML files into canonical records.

Accepts plain <Invoice> documents and <AttachedDocument> envelopes.
Directories are walked recursively for .xml files.

Examples:
  facturas process factura.xml
  facturas process facturas/ -o results.json
  facturas process *.xml -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "Output file (default: stdout)")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 30*time.Second, "Processing timeout per file")
}

// ProcessResult holds the result of normalizing a single file
type ProcessResult struct {
	File    string         `json:"file"`
	Invoice *model.Invoice `json:"invoice,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	files, err := collectXMLFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no XML files found to process")
	}

	printVerbose("Found %d files to process\n", len(files))

	results := make([]*ProcessResult, 0, len(files))
	for _, file := range files {
		printVerbose("Processing: %s\n", file)
		results = append(results, processFile(file))
	}

	return outputResults(results)
}

func collectXMLFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			if info.IsDir() {
				err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if !info.IsDir() && isXMLFile(path) {
						files = append(files, path)
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
			} else {
				files = append(files, arg)
			}
			continue
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !info.IsDir() && isXMLFile(match) {
				files = append(files, match)
			}
		}
	}

	return files, nil
}

func isXMLFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

func processFile(filePath string) *ProcessResult {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	result := &ProcessResult{File: filePath}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}

	inv, err := dian.ParseBytes(ctx, data)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Invoice = inv
	return result
}

func outputResults(results []*ProcessResult) error {
	writer := os.Stdout
	if processOutput != "" {
		f, err := os.Create(processOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "table":
		return outputProcessTable(writer, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputProcessTable(w *os.File, results []*ProcessResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tNUMBER\tDATE\tISSUER\tTOTAL\tUUID")
	fmt.Fprintln(tw, "----\t------\t----\t------\t-----\t----")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\n", r.File, r.Error)
			continue
		}

		date := ""
		if !r.Invoice.IssueDate.IsZero() {
			date = r.Invoice.IssueDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.File,
			r.Invoice.InvoiceNumber,
			date,
			r.Invoice.Issuer.Name,
			r.Invoice.TotalAmount.String(),
			r.Invoice.UUID,
		)
	}

	return tw.Flush()
}
