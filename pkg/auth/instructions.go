package auth

import (
	"fmt"
	"strings"
)

// KeysURL is where archive.org account holders find their S3 keys.
const KeysURL = "https://archive.org/account/s3.php"

// ShowKeysGuide explains where to find archive.org S3 keys.
func ShowKeysGuide() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("ARCHIVE.ORG UPLOAD KEYS")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
	fmt.Println("legmirror uploads through the Internet Archive's S3-compatible API,")
	fmt.Println("which authenticates with an access key and a secret key.")
	fmt.Println()
	fmt.Println("1. Log in to https://archive.org with the account that will own the items")
	fmt.Printf("2. Open %s\n", KeysURL)
	fmt.Println("3. Copy the access key and the secret key shown on that page")
	fmt.Println()
	fmt.Println("Keys are stored in the system keychain when one is available, otherwise")
	fmt.Println("in an encrypted file in the legmirror config directory. In CI set")
	fmt.Printf("%s and %s instead.\n", EnvAccessKey, EnvSecretKey)
	fmt.Println()
	fmt.Println("Anyone holding these keys can upload to and modify items of the account.")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
}
