// Command pagemark-openapi writes the OpenAPI document for the pagemark API.
// It registers the shared routes against stub handlers, so no provider,
// bucket or environment is needed.
//
// Usage:
//
//	go run ./cmd/pagemark-openapi > openapi.json
//	go run ./cmd/pagemark-openapi -yaml -output openapi.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/pagemark/internal/http/routes"
	"github.com/jmylchreest/pagemark/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8080", "Server URL published in the document")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	var out io.Writer = os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating %s: %v\n", *outputFile, err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := generate(out, *baseURL, *outputYAML); err != nil {
		fmt.Fprintf(os.Stderr, "error generating OpenAPI document: %v\n", err)
		os.Exit(1)
	}
	if *outputFile != "" {
		fmt.Fprintf(os.Stderr, "OpenAPI document written to %s\n", *outputFile)
	}
}

// generate renders the document for every route, including the raw
// streaming and multipart endpoints and the optional export route.
func generate(w io.Writer, baseURL string, asYAML bool) error {
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))
	routes.Register(api, routes.StubHandlers())
	doc := api.OpenAPI()

	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if !asYAML {
		_, err = io.WriteString(w, "\n")
	}
	return err
}
