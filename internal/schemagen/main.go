package main

import (
	"flag"
	"log"
	"os"

	"github.com/nbzz/add-qufirewall-rules/pkg/config"
	"github.com/nbzz/add-qufirewall-rules/pkg/schema"
)

var outFile = flag.String("o", "config.v1beta1.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	gen := schema.NewGenerator(config.NewConfig(),
		"github.com/nbzz/add-qufirewall-rules", "../..")
	jsData, err := gen.Generate()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	// Write the schema file next to the config package sources.
	err = os.WriteFile(*outFile, jsData, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
