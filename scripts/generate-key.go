// Package main is a development utility that generates the random keys a
// secretdrop deployment needs: a hex-encoded 32-byte content encryption key
// for SDP_SECRETS_ENCRYPTION_KEY and a base64 JWT signing secret for
// SDP_JWT_SECRET. Run it once per environment and store the output in your
// secret manager; never commit generated keys.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	encKey := make([]byte, 32)
	if _, err := rand.Read(encKey); err != nil {
		log.Fatal(err)
	}
	jwtSecret := make([]byte, 48)
	if _, err := rand.Read(jwtSecret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Generated secretdrop keys. Store these in your secret manager:")
	fmt.Println()
	fmt.Printf("SDP_SECRETS_ENCRYPTION_KEY=%s\n", hex.EncodeToString(encKey))
	fmt.Printf("SDP_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(jwtSecret))
}
