// Command keygen generates a fresh 256-bit master secret and prints it in
// the encodings sealbox accepts.
package main

import (
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/sealbox/sealbox/pkg/crypt"
	"github.com/sealbox/sealbox/pkg/keymat"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	quiet := flag.Bool("quiet", false,
		"print only the URL-safe base64 key, nothing else")
	flag.Parse()

	master, err := keymat.Random()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	raw := master.Bytes()

	b64 := base64.URLEncoding.EncodeToString(raw)
	if *quiet {
		fmt.Println(b64)
		return nil
	}

	fmt.Printf("base64 (url): %s\n", b64)
	fmt.Printf("hex:          %s\n", hex.EncodeToString(raw))
	fmt.Printf("fingerprint:  %s\n", crypt.Fingerprint(master))
	fmt.Printf("\nexport SEALBOX_MASTER_KEY=%s\n", b64)
	return nil
}
