package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-relay/providers"
)

/* validate-providers - Standalone CLI tool to validate providers.yaml
 * Usage: go run cmd/validate-providers/main.go [providers.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	providersFile := "providers.yaml"
	if len(os.Args) > 1 {
		providersFile = os.Args[1]
	}

	fmt.Printf("Validating providers file: %s\n", providersFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := providers.NewLoader()
	if err := loader.Load(providersFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	loaded := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d provider(s):\n", len(loaded))

	for i, p := range loaded {
		fmt.Printf("\n%d. Provider: %s\n", i+1, p.Name)
		fmt.Printf("   Signature:   %s\n", p.SignatureAlgorithm)
		if p.SignatureHeader != "" {
			fmt.Printf("   Header:      %s\n", p.SignatureHeader)
		}
		if len(p.EventTypes) > 0 {
			fmt.Printf("   Event types: %s\n", strings.Join(p.EventTypes, ", "))
		}
	}

	fmt.Printf("\n✓ All providers are valid!\n")
	os.Exit(0)
}
