package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dcollien/Chatitat/internal/auth"
)

func main() {
	key := flag.String("key", "", "Shared signing key (defaults to CHAT_SECRET)")
	user := flag.String("user", "", "User identifier")
	channel := flag.String("channel", "", "Channel name")
	issued := flag.Int64("issued", 0, "Issuance time in unix milliseconds (defaults to now)")
	flag.Parse()

	if *key == "" {
		*key = os.Getenv("CHAT_SECRET")
	}
	if *user == "" || *channel == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -user <user> -channel <channel> [-key <shared-key>] [-issued <unix-ms>]")
		fmt.Fprintln(os.Stderr, "  Reads the key from CHAT_SECRET if -key not specified")
		os.Exit(1)
	}
	if *issued == 0 {
		*issued = time.Now().UnixMilli()
	}

	signature := auth.Signature(*user, *channel, *issued, *key)

	fmt.Printf("user: %s\n", *user)
	fmt.Printf("channel: %s\n", *channel)
	fmt.Printf("issued: %d\n", *issued)
	fmt.Printf("signature: %s\n", signature)
}
