// useaiverify - Offline verification of sealed session chains
//
// Verifies the hash linkage and signatures of session chain files without a
// running daemon, for audits and automated pipelines.
//
// Usage:
//
//	useaiverify [flags] <chain.jsonl ...>
//	useaiverify [flags] -all
//
// Exit codes:
//
//	0  all chains valid
//	1  a chain's hash linkage is broken
//	2  hash linkage holds but a signature is invalid
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"useaid/internal/chain"
	"useaid/internal/keystore"
	"useaid/internal/store"
)

const (
	exitOK               = 0
	exitChainBroken      = 1
	exitSignatureInvalid = 2
)

type report struct {
	File           string `json:"file"`
	Records        int    `json:"records"`
	Valid          bool   `json:"valid"`
	SignatureValid bool   `json:"signature_valid"`
	BrokenAt       int    `json:"broken_at"`
	StartHash      string `json:"start_hash,omitempty"`
	EndHash        string `json:"end_hash,omitempty"`
}

func main() {
	all := flag.Bool("all", false, "verify every sealed chain in the data directory")
	keyPath := flag.String("key", "", "public key PEM file (default: the local keystore's public key)")
	jsonOut := flag.Bool("json", false, "emit JSON reports instead of text")
	quiet := flag.Bool("quiet", false, "suppress per-chain output; exit code only")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "useaiverify - Verify sealed session chains\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <chain.jsonl ...>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s [flags] -all\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	paths := store.DefaultPaths()

	files := flag.Args()
	if *all {
		ids, err := paths.ListSealedChains()
		if err != nil {
			fatal("list sealed chains: %v", err)
		}
		for _, id := range ids {
			files = append(files, paths.SealedChain(id))
		}
	}
	if len(files) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	publicKeyPEM := loadPublicKey(*keyPath, paths)
	if publicKeyPEM == "" && !*quiet {
		fmt.Fprintln(os.Stderr, "warning: no public key available, checking hash linkage only")
	}

	exit := exitOK
	for _, file := range files {
		rep := verifyFile(file, publicKeyPEM)
		if !*quiet {
			printReport(rep, *jsonOut)
		}
		switch {
		case !rep.Valid:
			exit = exitChainBroken
		case publicKeyPEM != "" && !rep.SignatureValid && exit == exitOK:
			exit = exitSignatureInvalid
		}
	}
	os.Exit(exit)
}

func verifyFile(path, publicKeyPEM string) report {
	rep := report{File: path, BrokenAt: -1}

	records, err := store.ReadChain(path)
	if err != nil {
		rep.Valid = false
		return rep
	}
	rep.Records = len(records)
	if len(records) > 0 {
		rep.StartHash = records[0].Hash
		rep.EndHash = records[len(records)-1].Hash
	}

	res := chain.VerifyChain(records, publicKeyPEM)
	rep.Valid = res.Valid
	rep.SignatureValid = res.SignatureValid
	rep.BrokenAt = res.BrokenAt
	return rep
}

// loadPublicKey prefers an explicit PEM file, falling back to the local
// keystore's public half.
func loadPublicKey(keyPath string, paths store.Paths) string {
	if keyPath != "" {
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			fatal("read key file: %v", err)
		}
		return string(pem)
	}
	var ks keystore.File
	if store.ReadJSON(paths.KeystoreFile(), &ks) {
		return ks.PublicKeyPEM
	}
	return ""
}

func printReport(rep report, jsonOut bool) {
	if jsonOut {
		out, _ := json.Marshal(rep)
		fmt.Println(string(out))
		return
	}
	switch {
	case !rep.Valid && rep.Records == 0:
		fmt.Printf("BROKEN   %s (unreadable)\n", rep.File)
	case !rep.Valid:
		fmt.Printf("BROKEN   %s (%d records, hash mismatch at record %d)\n",
			rep.File, rep.Records, rep.BrokenAt)
	case !rep.SignatureValid:
		fmt.Printf("UNSIGNED %s (%d records, linkage ok, signature invalid or missing)\n",
			rep.File, rep.Records)
	default:
		fmt.Printf("OK       %s (%d records, %s .. %s)\n",
			rep.File, rep.Records, short(rep.StartHash), short(rep.EndHash))
	}
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "useaiverify: "+format+"\n", args...)
	os.Exit(1)
}
