package main

import (
	"flag"
	"fmt"
	"os"

	"trip-dispatch/internal/cli"
)

func main() {
	var (
		tripID = flag.String("trip-id", "", "UUID of the trip")
		pin    = flag.String("pin", "", "4-digit start PIN of the trip")
		secret = flag.String("secret", "", "token HMAC secret (HS256)")
	)
	flag.Parse()

	if *tripID == "" || *pin == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: qr --trip-id=<uuid> --pin=<4 digits> --secret='<secret>'")
		os.Exit(2)
	}

	token, err := cli.GenerateStartQR(*secret, *tripID, *pin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("QR PAYLOAD:")
	fmt.Println(token)
}
